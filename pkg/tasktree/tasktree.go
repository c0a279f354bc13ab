// Package tasktree renders a live, hierarchical progress view to a terminal
// while arbitrary worker goroutines mutate it concurrently (spec §4.1).
// It is a direct Go port of the original bay/cli/tasks.py, colourized with
// github.com/logrusorgru/aurora and wrapped with
// github.com/mitchellh/go-wordwrap the way a teacher-grade terminal UI in
// this pack would (github.com/ipfs/testground pulls both directly).
package tasktree

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/logrusorgru/aurora"
	"github.com/mitchellh/go-wordwrap"
	"github.com/rs/xid"

	"github.com/getbay/bay/pkg/bayerr"
)

// Flavor is the colour family attached to a node's status text.
type Flavor int

const (
	FlavorNeutral Flavor = iota
	FlavorGood
	FlavorBad
	FlavorWarning
)

const (
	upOne     = "\033[A\033[1000D"
	clearLine = "\033[2K"
	indent    = "  "

	// defaultBarWidth is the fixed total width of a progress bar, spec §4.1.
	defaultBarWidth = 30
)

// Progress is a (count, total) pair; spec requires update() to reject
// anything that isn't exactly this shape, which in Go the type system
// enforces for free.
type Progress struct {
	Count int
	Total int
}

// Update carries the partial fields an Update call may set; a nil field
// means "leave unchanged", matching the original's optional keyword
// arguments.
type Update struct {
	Status       *string
	StatusFlavor *Flavor
	Progress     *Progress
}

// terminalSize is overridable by tests; it defaults to the real terminal via
// termSize (see termsize.go), which falls back to (80, 20) on failure.
var terminalSize = func() (width, height int) {
	return termSize()
}

// Node is one entry in the task tree (spec's TaskNode). A finished node is
// immutable; a node's own fields are guarded by its mutex, while subtask
// insertion and rendering are serialized by the Root's console lock.
type Node struct {
	ID   string
	Name string

	root   *Root
	parent *Node

	mu           sync.Mutex
	subtasks     []*Node
	status       string
	statusFlavor Flavor
	progress     *Progress
	extraInfo    []string
	finished     bool
	clearedLines int
}

// Root is the sentinel that owns the process-wide console lock and the
// rendering pipeline; it has no line of its own (spec's RootTask).
type Root struct {
	Node

	consoleMu sync.Mutex
	paused    int
	writer    func(string)
}

// NewRoot creates a root task tree writing ANSI output through write (os.Stdout.WriteString
// in production, a buffer in tests).
func NewRoot(write func(string)) *Root {
	r := &Root{writer: write}
	r.Node.root = r
	r.Node.Name = "__root__"
	return r
}

// NewTask inserts a new child node under parent (or the root if parent is
// nil) and triggers a render.
func (r *Root) NewTask(name string, parent *Node) *Node {
	if parent == nil {
		parent = &r.Node
	}
	n := &Node{
		ID:     xid.New().String(),
		Name:   name,
		root:   r,
		parent: parent,
	}
	r.consoleMu.Lock()
	parent.subtasks = append(parent.subtasks, n)
	r.consoleMu.Unlock()
	n.render()
	return n
}

// Update applies the partial update to n, then triggers a render that
// bubbles up through each parent's render; only the root ever repaints
// (spec §4.1).
func (n *Node) Update(u Update) error {
	if n.finishedSafe() {
		return fmt.Errorf("tasktree: cannot update finished task %q: %w", n.Name, invalidState)
	}
	if u.Progress != nil {
		// Progress is already constrained to (count, total) by the type
		// system; nothing further to validate here, unlike the Python
		// original which had to check tuple length at runtime.
	}
	n.mu.Lock()
	if u.Status != nil {
		n.status = *u.Status
	}
	if u.Progress != nil {
		p := *u.Progress
		n.progress = &p
	}
	if u.StatusFlavor != nil {
		n.statusFlavor = *u.StatusFlavor
	}
	n.mu.Unlock()

	n.render()
	return nil
}

var invalidState = fmt.Errorf("node is finished")

func (n *Node) finishedSafe() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.finished
}

// render bubbles up to the parent; only the root performs an actual
// terminal repaint (spec §4.1 "Root bubbling").
func (n *Node) render() {
	if n.parent != nil {
		n.parent.render()
		return
	}
	root, ok := n.rootNode()
	if !ok {
		return
	}
	root.repaint()
}

func (n *Node) rootNode() (*Root, bool) {
	if n.root == nil {
		return nil, false
	}
	return n.root, true
}

// AddExtraInfo appends a line of auxiliary info and triggers a render.
func (n *Node) AddExtraInfo(line string) {
	n.mu.Lock()
	n.extraInfo = append(n.extraInfo, line)
	n.mu.Unlock()
	if n.parent != nil {
		n.parent.render()
	} else if root, ok := n.rootNode(); ok {
		root.repaint()
	}
}

// SetExtraInfo replaces all auxiliary lines and triggers a render.
func (n *Node) SetExtraInfo(lines []string) {
	n.mu.Lock()
	n.extraInfo = lines
	n.mu.Unlock()
	if n.parent != nil {
		n.parent.render()
	} else if root, ok := n.rootNode(); ok {
		root.repaint()
	}
}

// Finish marks the node finished after applying one last update. Further
// mutation fails with InvalidState.
func (n *Node) Finish(u Update) error {
	if err := n.Update(u); err != nil {
		return err
	}
	n.mu.Lock()
	n.finished = true
	n.mu.Unlock()
	return nil
}

// lines returns how many console rows this node's subtree needs: one per
// node except the root, plus one per extra_info line (spec §4.1 step 1).
func (n *Node) lines() int {
	n.mu.Lock()
	self := 1
	if n.parent == nil {
		self = 0 // root owns no line of its own
	}
	extra := len(n.extraInfo)
	subtasks := append([]*Node(nil), n.subtasks...)
	n.mu.Unlock()

	total := self + extra
	for _, s := range subtasks {
		total += s.lines()
	}
	return total
}

// repaint executes the render protocol under the console lock (spec §4.1).
func (r *Root) repaint() {
	r.consoleMu.Lock()
	defer r.consoleMu.Unlock()
	if r.paused > 0 {
		return
	}
	r.doRepaint()
}

func (r *Root) doRepaint() {
	needed := r.Node.lines()
	delta := needed - r.Node.clearedLines
	var b strings.Builder
	switch {
	case delta > 0:
		b.WriteString(strings.Repeat("\n", delta))
	case delta < 0:
		b.WriteString(strings.Repeat(upOne+clearLine, -delta))
	}
	r.Node.clearedLines = needed

	b.WriteString(strings.Repeat(upOne+clearLine, needed))

	r.writeSubtasks(&b, &r.Node, 0)

	if r.writer != nil {
		r.writer(b.String())
	}
}

func (r *Root) writeSubtasks(b *strings.Builder, n *Node, depth int) {
	n.mu.Lock()
	subtasks := append([]*Node(nil), n.subtasks...)
	n.mu.Unlock()

	for _, s := range subtasks {
		s.output(b, depth)
	}
}

// output prints this node's own line, its extra_info, then recurses into
// its subtasks (spec §4.1 step 4's depth-first print).
func (n *Node) output(b *strings.Builder, depth int) {
	n.mu.Lock()
	name := n.Name
	status := n.status
	flavor := n.statusFlavor
	progress := n.progress
	extra := append([]string(nil), n.extraInfo...)
	subtasks := append([]*Node(nil), n.subtasks...)
	n.mu.Unlock()

	width, _ := terminalSize()

	indentStr := strings.Repeat(indent, depth)
	progressStr := ""
	if progress != nil {
		progressStr = ProgressBar(progress.Count, progress.Total, defaultBarWidth) + " "
	}

	coloured := colourize(status, flavor)
	fmt.Fprintf(b, "%s%s: %s%s\n", indentStr, aurora.Cyan(name), progressStr, coloured)

	childIndent := strings.Repeat(indent, depth+1)
	maxWidth := width - len(childIndent) - 1
	if maxWidth < 1 {
		maxWidth = 1
	}
	for _, info := range extra {
		wrapped := wordwrap.WrapString(strings.ReplaceAll(info, "\n", " "), uint(maxWidth))
		line := strings.SplitN(wrapped, "\n", 2)[0]
		if len(line) > maxWidth {
			line = line[:maxWidth]
		}
		fmt.Fprintf(b, "%s%s\n", childIndent, line)
	}

	for _, s := range subtasks {
		s.output(b, depth+1)
	}
}

func colourize(status string, flavor Flavor) string {
	switch flavor {
	case FlavorBad:
		return aurora.Red(status).String()
	case FlavorGood:
		return aurora.Green(status).String()
	case FlavorWarning:
		return aurora.Yellow(status).String()
	default:
		return status
	}
}

// ProgressBar renders a fixed-width bar per spec §4.1: filled chars equal
// floor((width-2) * clamp(count/total, 0, 1)); count<=0 is empty,
// count>=total is full.
func ProgressBar(count, total, width int) string {
	ratio := 0.0
	if total > 0 {
		ratio = float64(count) / float64(total)
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	barWidth := width - 2
	filled := int(float64(barWidth) * ratio)
	return fmt.Sprintf("[%s%s] %d/%d", strings.Repeat("=", filled), strings.Repeat(" ", barWidth-filled), count, total)
}

// PausedOutput suspends rendering for the duration of fn, letting foreign
// output (an attached TTY, a raw image-pull stream) share the terminal.
// On return it resets the cleared-line counter and forces a full redraw,
// matching the original's paused_output context manager (spec §4.1).
func (r *Root) PausedOutput(fn func()) {
	r.consoleMu.Lock()
	r.paused++
	r.consoleMu.Unlock()

	fn()

	r.consoleMu.Lock()
	r.paused--
	resume := r.paused == 0
	if resume {
		r.Node.clearedLines = 0
	}
	r.consoleMu.Unlock()

	if resume {
		r.repaint()
	}
}

// RateLimiter batches update()/SetExtraInfo calls on a node so that only
// the latest values are flushed at most once per interval, replacing the
// original's background-thread flusher with a single owned timer per spec
// §9's design note ("Rate-limited updater").
type RateLimiter struct {
	node     *Node
	interval time.Duration

	mu      sync.Mutex
	pending *Update
	extra   *[]string
	stop    chan struct{}
	done    chan struct{}
}

// DefaultRateLimitInterval matches the original's 100ms default cadence.
const DefaultRateLimitInterval = 100 * time.Millisecond

// NewRateLimiter starts a flusher goroutine for node; call Close to stop
// it and perform one final flush.
func NewRateLimiter(node *Node, interval time.Duration) *RateLimiter {
	if interval <= 0 {
		interval = DefaultRateLimitInterval
	}
	rl := &RateLimiter{
		node:     node,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go rl.loop()
	return rl
}

func (rl *RateLimiter) loop() {
	defer close(rl.done)
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.flush()
		case <-rl.stop:
			rl.flush()
			return
		}
	}
}

// Update records the latest values without flushing immediately.
func (rl *RateLimiter) Update(u Update) {
	rl.mu.Lock()
	rl.pending = &u
	rl.mu.Unlock()
}

// SetExtraInfo records the latest extra-info lines without flushing immediately.
func (rl *RateLimiter) SetExtraInfo(lines []string) {
	rl.mu.Lock()
	cp := append([]string(nil), lines...)
	rl.extra = &cp
	rl.mu.Unlock()
}

func (rl *RateLimiter) flush() {
	rl.mu.Lock()
	u, extra := rl.pending, rl.extra
	rl.pending, rl.extra = nil, nil
	rl.mu.Unlock()

	if u != nil {
		_ = rl.node.Update(*u)
	}
	if extra != nil {
		rl.node.SetExtraInfo(*extra)
	}
}

// Close stops the flusher goroutine after performing one final flush.
func (rl *RateLimiter) Close() {
	close(rl.stop)
	<-rl.done
}

// AsInvalidArgument builds a BadConfig error from a formatted message so
// callers can report a malformed Progress tuple loudly; kept as a thin
// adapter over bayerr so tasktree doesn't need its own error kind.
func AsInvalidArgument(format string, args ...interface{}) error {
	return bayerr.NewBadConfig(format, args...)
}
