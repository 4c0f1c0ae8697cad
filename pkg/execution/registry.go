package execution

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"plan-agent/pkg/interp"
	"plan-agent/pkg/logger"
	"plan-agent/pkg/plan"
)

// ErrNotFound is returned for unknown or already swept execution ids.
type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return "execution not found: " + e.ID
}

// Config tunes the registry.
type Config struct {
	// GracePeriod keeps finished executions queryable before the sweeper
	// drops them. Zero means 10 minutes.
	GracePeriod time.Duration

	// SubscriberBuffer is the per-subscriber headroom beyond the replayed
	// log. Zero means 64.
	SubscriberBuffer int

	// SweepInterval controls how often the sweeper scans. Zero means one
	// minute. Tests shorten it.
	SweepInterval time.Duration
}

// Registry owns every live and recently finished execution. It spawns one
// goroutine per execution plus one sweeper.
type Registry struct {
	interp *interp.Interpreter
	log    logger.Logger
	cfg    Config

	mu      sync.Mutex
	records map[string]*Record

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewRegistry creates a registry and starts its sweeper.
func NewRegistry(it *interp.Interpreter, log logger.Logger, cfg Config) *Registry {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 10 * time.Minute
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 64
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	r := &Registry{
		interp:  it,
		log:     log,
		cfg:     cfg,
		records: make(map[string]*Record),
		done:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.sweeper()
	return r
}

// Launch registers a new execution for p and starts it on its own
// goroutine. The returned record is immediately subscribable; the
// execution_started event is published by the interpreter, so a subscriber
// attached right after Launch sees the stream from the beginning.
func (r *Registry) Launch(p *plan.Plan, query string) *Record {
	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecord(uuid.New().String(), query, p, cancel, r.cfg.SubscriberBuffer)

	r.mu.Lock()
	r.records[rec.id] = rec
	r.mu.Unlock()

	r.log.Infof("🚀 launching execution %s: %d steps", rec.id, len(p.Steps))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		env := interp.NewEnvironment()
		env.Seed("user_query", query)
		result := r.interp.Run(ctx, p, env, rec)
		switch result.Status {
		case interp.StatusCompleted:
			r.log.Infof("✅ execution %s completed", rec.id)
		case interp.StatusStopped:
			r.log.Infof("🛑 execution %s stopped", rec.id)
		default:
			r.log.Errorf("❌ execution %s failed (%s): %v", rec.id, result.Reason, result.Err)
		}
	}()
	return rec
}

// Get looks up an execution by id.
func (r *Registry) Get(id string) (*Record, error) {
	r.mu.Lock()
	rec, ok := r.records[id]
	r.mu.Unlock()
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	return rec, nil
}

// List snapshots every tracked execution.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	records := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Snapshot())
	}
	return out
}

// Stop cancels the execution with the given id.
func (r *Registry) Stop(id string) error {
	rec, err := r.Get(id)
	if err != nil {
		return err
	}
	rec.Cancel()
	return nil
}

// Sweep drops executions that finished before the grace period. Exposed for
// tests; the background sweeper calls it on a ticker.
func (r *Registry) Sweep() int {
	cutoff := time.Now().UTC().Add(-r.cfg.GracePeriod)

	r.mu.Lock()
	var swept []string
	for id, rec := range r.records {
		if rec.finishedBefore(cutoff) {
			delete(r.records, id)
			swept = append(swept, id)
		}
	}
	r.mu.Unlock()

	for _, id := range swept {
		r.log.Debugf("swept finished execution %s", id)
	}
	return len(swept)
}

func (r *Registry) sweeper() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Shutdown cancels every live execution and waits for their goroutines and
// the sweeper to exit, or for ctx to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.once.Do(func() { close(r.done) })

	r.mu.Lock()
	for _, rec := range r.records {
		rec.Cancel()
	}
	r.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
