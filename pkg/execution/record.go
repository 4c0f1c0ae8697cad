// Package execution tracks running and recently finished plan executions:
// one append-only event log per execution, live fan-out to subscribers with
// atomic replay handoff, cooperative cancellation and a grace-period sweep.
package execution

import (
	"sync"
	"time"

	"plan-agent/pkg/events"
	"plan-agent/pkg/plan"
)

// Status is the externally visible lifecycle state of an execution.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// IsTerminal reports whether the execution will publish no further events.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// Subscriber is one consumer of an execution's event stream. Events arrives
// already ordered by Seq; the channel closes after the terminal event, or
// early when the consumer falls too far behind.
type Subscriber struct {
	Events <-chan events.Event

	ch     chan events.Event
	closed sync.Once
	record *Record
}

// Close detaches the subscriber. Safe to call more than once and safe to
// call concurrently with the record publishing.
func (s *Subscriber) Close() {
	s.record.unsubscribe(s)
}

func (s *Subscriber) shut() {
	s.closed.Do(func() { close(s.ch) })
}

// Snapshot is a point-in-time copy of an execution's state for status APIs.
type Snapshot struct {
	ID            string     `json:"id"`
	Query         string     `json:"query"`
	Status        Status     `json:"status"`
	CurrentStepID string     `json:"current_step_id,omitempty"`
	StepCount     int        `json:"step_count"`
	FinalResult   string     `json:"final_result,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	EventCount    int        `json:"event_count"`
}

// Record is the registry's bookkeeping for one execution. All mutation goes
// through Publish under mu, which is what makes the replay-then-live
// subscription handoff atomic.
type Record struct {
	id        string
	query     string
	plan      *plan.Plan
	cancel    func()
	createdAt time.Time
	buffer    int

	mu          sync.Mutex
	seq         int
	log         []events.Event
	subscribers map[*Subscriber]struct{}

	status        Status
	currentStepID string
	stepCount     int
	finalResult   string
	reason        string
	errMsg        string
	startedAt     *time.Time
	finishedAt    *time.Time
}

func newRecord(id, query string, p *plan.Plan, cancel func(), buffer int) *Record {
	return &Record{
		id:          id,
		query:       query,
		plan:        p,
		cancel:      cancel,
		createdAt:   time.Now().UTC(),
		buffer:      buffer,
		status:      StatusStarting,
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// ID returns the execution identifier.
func (r *Record) ID() string { return r.id }

// Plan returns the plan this execution runs.
func (r *Record) Plan() *plan.Plan { return r.plan }

// Publish appends ev to the log, advances the derived state and fans the
// event out. A subscriber whose buffer is full is detached rather than
// blocking the interpreter. Terminal events close every subscriber.
func (r *Record) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.IsTerminal() {
		// The interpreter never publishes past a terminal event; drop
		// anything that slips through rather than corrupt the log.
		return
	}

	r.seq++
	ev.Seq = r.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	r.log = append(r.log, ev)
	r.advance(ev)

	for sub := range r.subscribers {
		select {
		case sub.ch <- ev:
		default:
			// Slow consumer: detach so the producer never blocks.
			delete(r.subscribers, sub)
			sub.shut()
		}
	}

	if ev.Type.IsTerminal() {
		for sub := range r.subscribers {
			delete(r.subscribers, sub)
			sub.shut()
		}
	}
}

// advance folds one event into the derived status fields. Caller holds mu.
func (r *Record) advance(ev events.Event) {
	switch ev.Type {
	case events.ExecutionStarted:
		r.status = StatusRunning
		r.startedAt = ev.StartedAt
	case events.StepStarted:
		r.currentStepID = ev.StepID
		r.stepCount++
	case events.StepCompleted:
		if ev.Success != nil && *ev.Success && ev.Result != "" {
			r.finalResult = ev.Result
		}
	case events.ExecutionCompleted:
		r.status = StatusCompleted
		r.finalResult = ev.Result
		r.finishedAt = ev.FinishedAt
	case events.ExecutionFailed:
		r.status = StatusFailed
		r.reason = ev.Reason
		r.errMsg = ev.Error
		r.finishedAt = ev.FinishedAt
	case events.ExecutionStopped:
		r.status = StatusStopped
		r.finishedAt = ev.FinishedAt
	}
}

// Subscribe attaches a consumer. The full log so far is replayed into the
// channel before any live event can be interleaved; for an already-terminal
// execution the channel holds the replay and is closed immediately.
func (r *Record) Subscribe() *Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan events.Event, len(r.log)+r.buffer)
	sub := &Subscriber{Events: ch, ch: ch, record: r}
	for _, ev := range r.log {
		ch <- ev
	}

	if r.status.IsTerminal() {
		sub.shut()
		return sub
	}
	r.subscribers[sub] = struct{}{}
	return sub
}

func (r *Record) unsubscribe(sub *Subscriber) {
	r.mu.Lock()
	delete(r.subscribers, sub)
	r.mu.Unlock()
	sub.shut()
}

// Cancel requests cooperative termination. The interpreter notices at its
// next cancellation point and publishes execution_stopped itself.
func (r *Record) Cancel() {
	r.cancel()
}

// Snapshot copies the current state.
func (r *Record) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		ID:            r.id,
		Query:         r.query,
		Status:        r.status,
		CurrentStepID: r.currentStepID,
		StepCount:     r.stepCount,
		FinalResult:   r.finalResult,
		Reason:        r.reason,
		Error:         r.errMsg,
		CreatedAt:     r.createdAt,
		StartedAt:     r.startedAt,
		FinishedAt:    r.finishedAt,
		EventCount:    len(r.log),
	}
}

// Events copies the event log so far.
func (r *Record) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.log...)
}

// finishedBefore reports whether the execution reached a terminal state
// before cutoff. Used by the sweeper.
func (r *Record) finishedBefore(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.IsTerminal() && r.finishedAt != nil && r.finishedAt.Before(cutoff)
}
