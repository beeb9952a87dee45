package effects

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"cgmanager/internal/services"
)

func TestColorPlaysSolid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.create(t, KindColor, f.group(t, 1, "bg"), `{"color":"ff0000","transition":"mix","duration":10}`)

	require.NoError(t, c.Activate(ctx))
	require.NoError(t, c.Deactivate(ctx))
	require.Equal(t, []string{"PLAY 1-1 #FF0000 MIX 10", "CLEAR 1-1"}, f.transport.Lines())
}

func TestColorRejectsBadValues(t *testing.T) {
	f := newFixture(t)
	for _, opts := range []string{`{}`, `{"color":"red"}`, `{"color":"#12345"}`} {
		_, err := f.registry.Create(KindColor, f.group(t, 1, "bg"), []byte(opts))
		require.ErrorIs(t, err, services.ErrValidation, opts)
	}
}
