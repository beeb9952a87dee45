package caspar

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"cgmanager/internal/amcp"
)

func TestPlanReconcilePermutationNeedsAtMostNMinusOneSwaps(t *testing.T) {
	last := []int64{11, 12, 13, 14}
	current := []int64{14, 11, 12, 13}

	plan := planReconcile(1, last, current)

	require.Zero(t, plan.stats.clears)
	require.Equal(t, 3, plan.stats.swaps)
	require.Len(t, plan.batch.Lines(), 3)
	require.Equal(t, current, applyPlan(t, last, plan.batch.Lines()))
}

func TestPlanReconcileDisjointCycles(t *testing.T) {
	last := []int64{1, 2, 3, 4}
	current := []int64{2, 1, 4, 3}

	plan := planReconcile(1, last, current)

	require.Equal(t, 2, plan.stats.swaps)
}

func TestPlanReconcileClearsBeforeSwapping(t *testing.T) {
	last := []int64{1, 2, 3}
	current := []int64{3, 0, 1}

	plan := planReconcile(2, last, current)

	require.Equal(t, 1, plan.stats.clears)
	require.Equal(t, "CLEAR 2-2", plan.batch.Lines()[0])
	require.Equal(t, current, applyPlan(t, last, plan.batch.Lines()))
}

func TestPlanReconcileNothingToDo(t *testing.T) {
	plan := planReconcile(1, []int64{1, 0, 2}, []int64{1, 0, 2, 3})
	require.Zero(t, plan.stats.swaps)
	require.Zero(t, plan.stats.clears)
	require.Empty(t, plan.batch.Lines())
	require.Empty(t, plan.ops)
}

func TestPlanReachedAppliesOnlyAcceptedLines(t *testing.T) {
	last := []int64{1, 2, 3}
	current := []int64{3, 0, 1, 9}
	plan := planReconcile(1, last, current)
	lines := plan.batch.Lines()
	require.Equal(t, []string{"CLEAR 1-2", "SWAP 1-1 1-3"}, lines)

	ok := amcp.Response{Code: 202}
	rejected := amcp.Response{Code: 500}

	require.Equal(t, []int64{3, 0, 1, 9}, plan.reached(last, current, []amcp.Response{ok, ok}))
	require.Equal(t, []int64{3, 2, 1, 9}, plan.reached(last, current, []amcp.Response{rejected, ok}))
	require.Equal(t, []int64{1, 0, 3, 9}, plan.reached(last, current, []amcp.Response{ok, rejected}))
	require.Equal(t, []int64{1, 0, 3, 9}, plan.reached(last, current, []amcp.Response{ok}), "missing responses count as not executed")
}

// applyPlan replays CLEAR and SWAP lines against an order of layer ids.
func applyPlan(t *testing.T, last []int64, lines []string) []int64 {
	t.Helper()
	state := make([]int64, len(last))
	copy(state, last)
	for _, line := range lines {
		var ch, a, b int
		if n, _ := fmt.Sscanf(line, "SWAP %d-%d %d-%d", &ch, &a, &ch, &b); n == 4 {
			for len(state) < max(a, b) {
				state = append(state, 0)
			}
			state[a-1], state[b-1] = state[b-1], state[a-1]
			continue
		}
		if n, _ := fmt.Sscanf(line, "CLEAR %d-%d", &ch, &a); n == 2 {
			state[a-1] = 0
			continue
		}
		t.Fatalf("unexpected line %q", line)
	}
	return state
}
