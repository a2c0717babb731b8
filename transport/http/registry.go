package http

import (
	"errors"
	"sync"
	"time"

	"github.com/layer-3/garuda/core"
)

// ErrRunNotFound is returned for unknown run identifiers.
var ErrRunNotFound = errors.New("run not found")

// defaultRunRetention is how long a finished run stays queryable before it is
// evicted from the registry.
const defaultRunRetention = 15 * time.Minute

// runState is the transport's view of one in-flight or finished run.
// Pipeline runs are transient, so the registry keeps the last snapshot for
// polling clients and fans events out to SSE subscribers.
type runState struct {
	subject     string
	last        core.ProgressEvent
	err         error
	finishedAt  time.Time // Zero while the run is in flight
	subscribers map[int]chan core.ProgressEvent
	nextSub     int
}

// runRegistry tracks runs started through the HTTP surface. Finished runs are
// kept for the retention window and evicted when new runs are registered, so
// the map stays bounded in a long-lived process.
type runRegistry struct {
	runs      map[string]*runState
	retention time.Duration
	mu        sync.Mutex
}

func newRunRegistry() *runRegistry {
	return &runRegistry{
		runs:      make(map[string]*runState),
		retention: defaultRunRetention,
	}
}

// create registers a new run and evicts finished runs past retention.
func (r *runRegistry) create(id, subject string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for rid, state := range r.runs {
		if !state.finishedAt.IsZero() && now.Sub(state.finishedAt) > r.retention {
			delete(r.runs, rid)
		}
	}

	r.runs[id] = &runState{
		subject:     subject,
		last:        core.ProgressEvent{Stage: core.StageIdle},
		subscribers: make(map[int]chan core.ProgressEvent),
	}
}

// update records a progress event and fans it out to subscribers. Slow
// subscribers lose intermediate events rather than blocking the run.
func (r *runRegistry) update(id string, ev core.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.runs[id]
	if !exists {
		return
	}
	state.last = ev
	state.notify(ev)
}

// finish records the terminal event and error under one lock acquisition, so
// a reader never observes a terminal stage without its error.
func (r *runRegistry) finish(id string, ev core.ProgressEvent, runErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.runs[id]
	if !exists {
		return
	}
	state.last = ev
	state.err = runErr
	state.finishedAt = time.Now()
	state.notify(ev)
}

// snapshot returns the last event and terminal error for a run.
func (r *runRegistry) snapshot(id string) (string, core.ProgressEvent, error, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.runs[id]
	if !exists {
		return "", core.ProgressEvent{}, nil, ErrRunNotFound
	}
	return state.subject, state.last, state.err, nil
}

// subscribe returns a channel receiving the run's events, primed with the
// current snapshot, and a cancel function.
func (r *runRegistry) subscribe(id string) (<-chan core.ProgressEvent, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.runs[id]
	if !exists {
		return nil, nil, ErrRunNotFound
	}

	ch := make(chan core.ProgressEvent, 32)
	ch <- state.last

	sub := state.nextSub
	state.nextSub++
	state.subscribers[sub] = ch

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if s, ok := r.runs[id]; ok {
			delete(s.subscribers, sub)
		}
	}
	return ch, cancel, nil
}

// notify is called with the registry lock held.
func (s *runState) notify(ev core.ProgressEvent) {
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
