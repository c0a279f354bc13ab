package tasktree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressBarFormula(t *testing.T) {
	assert.Equal(t, "[                    ] 0/10", ProgressBar(0, 10, 22))
	assert.Equal(t, "[====================] 10/10", ProgressBar(10, 10, 22))
	assert.Equal(t, "[==========          ] 5/10", ProgressBar(5, 10, 22))
	// count <= 0 is empty
	assert.Equal(t, "[                    ] -3/10", ProgressBar(-3, 10, 22))
	// count >= total is full
	assert.Equal(t, "[====================] 20/10", ProgressBar(20, 10, 22))
}

func TestNewTaskAndFinish(t *testing.T) {
	var out strings.Builder
	root := NewRoot(func(s string) { out.WriteString(s) })

	n := root.NewTask("Starting A", nil)
	require.NoError(t, n.Update(Update{Status: strPtr("booting")}))
	require.NoError(t, n.Finish(Update{Status: strPtr("Done"), StatusFlavor: flavorPtr(FlavorGood)}))

	err := n.Update(Update{Status: strPtr("more")})
	assert.Error(t, err, "updating a finished task must fail loudly")
}

func TestChildUpdateBubblesToRootOnly(t *testing.T) {
	var renders int
	root := NewRoot(func(s string) { renders++ })

	parent := root.NewTask("parent", nil)
	child := root.NewTask("child", parent)

	before := renders
	require.NoError(t, child.Update(Update{Status: strPtr("working")}))
	assert.Equal(t, before+1, renders, "a child update must still trigger exactly one root repaint")
}

func TestLineAccounting(t *testing.T) {
	root := NewRoot(func(string) {})
	a := root.NewTask("A", nil)
	assert.Equal(t, 1, a.lines())

	b := root.NewTask("B", a)
	assert.Equal(t, 2, a.lines())

	b.AddExtraInfo("hello")
	assert.Equal(t, 3, a.lines())
}

func TestPausedOutputForcesFullRedrawOnResume(t *testing.T) {
	var repaints int
	var last string
	root := NewRoot(func(s string) { repaints++; last = s })
	n := root.NewTask("A", nil)
	_ = n.Update(Update{Status: strPtr("x")})

	root.Node.clearedLines = 5
	root.PausedOutput(func() {
		// simulate foreign output writing directly to the terminal
	})
	// the cleared-line counter was reset, so the redraw scrolls a fresh row
	// instead of moving up over the five rows recorded before the pause
	assert.True(t, strings.HasPrefix(last, "\n"))
	assert.GreaterOrEqual(t, repaints, 1)
}

func TestRateLimiterCoalescesUpdates(t *testing.T) {
	root := NewRoot(func(string) {})
	n := root.NewTask("A", nil)
	rl := NewRateLimiter(n, DefaultRateLimitInterval)
	for i := 0; i < 5; i++ {
		rl.Update(Update{Status: strPtr("tick")})
	}
	rl.Close()
	assert.Equal(t, "tick", n.status)
}

func strPtr(s string) *string      { return &s }
func flavorPtr(f Flavor) *Flavor   { return &f }
