package httpapi

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/priority-ride/internal/logging"
	"github.com/example/priority-ride/internal/models"
	"github.com/example/priority-ride/internal/orchestrator"
)

var errRunActive = errors.New("an orchestration is already running")

const keepFinishedRuns = 50

type runEntry struct {
	orch    *orchestrator.Orchestrator
	started time.Time
	done    chan struct{}
}

// runRegistry owns the orchestrations started over HTTP. Only one runs at a
// time because every run draws on the same filler pool.
type runRegistry struct {
	s       *Server
	policy  orchestrator.Policy
	timeout time.Duration
	sleep   func(time.Duration)

	mu     sync.Mutex
	runs   map[string]*runEntry
	order  []string
	active string
	wg     sync.WaitGroup
}

func newRunRegistry(s *Server, policy orchestrator.Policy, timeout time.Duration, sleep func(time.Duration)) *runRegistry {
	return &runRegistry{s: s, policy: policy, timeout: timeout, sleep: sleep, runs: make(map[string]*runEntry)}
}

// start launches a run in the background, raced against the run timeout.
func (rr *runRegistry) start(targetKey string, route models.Route) (*orchestrator.Orchestrator, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if rr.active != "" {
		return nil, errRunActive
	}

	runID := uuid.NewString()
	sink := logging.LineSink(rr.s.logger, runID)
	if rr.s.recorder != nil {
		persist := rr.s.recorder.RunSink(runID)
		logLine := sink
		sink = func(line string) {
			logLine(line)
			persist(line)
		}
	}
	o := orchestrator.New(targetKey, route, orchestrator.Options{
		Client:     rr.s.client,
		Roster:     rr.s.accounts,
		Classifier: rr.s.classifier,
		State:      rr.s.state,
		Events:     rr.s.events,
		Sink:       sink,
		Policy:     rr.policy,
		Sleep:      rr.sleep,
		Logger:     rr.s.logger,
		RunID:      runID,
	})
	e := &runEntry{orch: o, started: time.Now(), done: make(chan struct{})}
	rr.runs[runID] = e
	rr.order = append(rr.order, runID)
	rr.active = runID
	rr.pruneLocked()

	rr.wg.Add(1)
	go func() {
		defer rr.wg.Done()
		defer close(e.done)
		ctx, cancel := context.WithTimeout(context.Background(), rr.timeout)
		defer cancel()
		res := o.Run(ctx)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			rr.s.logger.Warn("orchestration timed out", "run_id", runID, "timeout", rr.timeout, "message", res.Message)
		}
		rr.mu.Lock()
		if rr.active == runID {
			rr.active = ""
		}
		rr.mu.Unlock()
	}()
	return o, nil
}

func (rr *runRegistry) get(id string) (*orchestrator.Orchestrator, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	e, ok := rr.runs[id]
	if !ok {
		return nil, false
	}
	return e.orch, true
}

// list returns snapshots newest first, without log lines.
func (rr *runRegistry) list() []orchestrator.Snapshot {
	rr.mu.Lock()
	entries := make([]*runEntry, 0, len(rr.runs))
	for _, e := range rr.runs {
		entries = append(entries, e)
	}
	rr.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].started.After(entries[j].started) })
	out := make([]orchestrator.Snapshot, 0, len(entries))
	for _, e := range entries {
		snap := e.orch.Status()
		snap.Lines = nil
		out = append(out, snap)
	}
	return out
}

func (rr *runRegistry) stopAll() {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if e, ok := rr.runs[rr.active]; ok {
		e.orch.Stop()
	}
}

func (rr *runRegistry) idle() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		rr.wg.Wait()
		close(ch)
	}()
	return ch
}

// pruneLocked forgets the oldest finished runs beyond keepFinishedRuns.
func (rr *runRegistry) pruneLocked() {
	for len(rr.order) > keepFinishedRuns {
		oldest := rr.order[0]
		if oldest == rr.active {
			return
		}
		rr.order = rr.order[1:]
		delete(rr.runs, oldest)
	}
}
