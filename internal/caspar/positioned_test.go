package caspar_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"cgmanager/internal/amcp"
	"cgmanager/internal/caspar"
)

func TestPositionedEmpty(t *testing.T) {
	var p caspar.Positioned
	require.True(t, p.Empty())
	require.Nil(t, p.PositionCommands())
	require.Nil(t, p.ResetCommands())
}

func TestPositionedCommands(t *testing.T) {
	_, ch, _ := newTestChannel(t)
	layers := ch.AllocateLayers(2, -1)
	require.NoError(t, ch.ExecuteAllocation(context.Background()))

	p := caspar.Positioned{
		Fill:        &caspar.Rect{X: 0.5, Y: 0, Width: 0.5, Height: 0.5},
		Edgeblend:   &caspar.Margins{Left: 0.1, Right: 0.25},
		Perspective: &[8]float64{0, 0, 1, 0, 1, 1, 0, 1},
		Animation:   amcp.Animation{Duration: 25, Tween: "easeinsine"},
	}

	cmd := p.PositionCommands(layers[0])
	require.Equal(t, []string{
		"MIXER 1-1 FILL 0.5 0 0.5 0.5 25 easeinsine",
		"MIXER 1-1 CROP 0.1 0 0.75 1 25 easeinsine",
		"MIXER 1-1 PERSPECTIVE 0 0 1 0 1 1 0 1 25 easeinsine",
	}, cmd.Lines())

	require.Equal(t, []string{"MIXER 1-1 CLEAR", "MIXER 1-2 CLEAR"}, p.ResetCommands(layers...).Lines())
}
