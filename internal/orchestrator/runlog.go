package orchestrator

import (
	"fmt"
)

type feed struct {
	ch chan string
}

// logf appends a timestamped line, forwards it to the sink and pushes it to
// live followers. A follower whose buffer is full misses the line.
func (o *Orchestrator) logf(format string, args ...any) {
	line := fmt.Sprintf("[%s] %s", o.now().Format("15:04:05"), fmt.Sprintf(format, args...))
	o.mu.Lock()
	o.lines = append(o.lines, line)
	for f := range o.feeds {
		select {
		case f.ch <- line:
		default:
		}
	}
	o.mu.Unlock()
	if o.sink != nil {
		o.sink(line)
	}
}

// Lines returns every line logged so far.
func (o *Orchestrator) Lines() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.lines...)
}

// Follow returns the lines logged so far and a channel carrying the ones that
// follow. The channel is closed when the run finishes or cancel is called.
func (o *Orchestrator) Follow(buffer int) ([]string, <-chan string, func()) {
	if buffer < 1 {
		buffer = 1
	}
	f := &feed{ch: make(chan string, buffer)}
	o.mu.Lock()
	backlog := append([]string(nil), o.lines...)
	if o.result != nil {
		close(f.ch)
		o.mu.Unlock()
		return backlog, f.ch, func() {}
	}
	o.feeds[f] = struct{}{}
	o.mu.Unlock()

	return backlog, f.ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if _, ok := o.feeds[f]; ok {
			delete(o.feeds, f)
			close(f.ch)
		}
	}
}

func (o *Orchestrator) closeFeedsLocked() {
	for f := range o.feeds {
		delete(o.feeds, f)
		close(f.ch)
	}
}
