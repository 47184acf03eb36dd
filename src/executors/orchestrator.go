package executors

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logger "github.com/sirupsen/logrus"

	"botmanager/src/model"
	"botmanager/src/repository"
)

// Cycle is one schedulable unit of background work.
type Cycle interface {
	Name() string
	RunCycle(ctx context.Context) (*CycleReport, error)
}

type loop struct {
	cycle    Cycle
	interval time.Duration

	// inFlight guards against overlapping runs of the same cycle: a tick
	// that arrives while the previous run is still going is dropped.
	inFlight atomic.Bool
}

// Orchestrator owns the background loops. Each registered cycle runs on its
// own ticker in its own goroutine; cycles never block each other.
type Orchestrator struct {
	exceptions *repository.ExceptionRepository

	mu      sync.Mutex
	loops   []*loop
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewOrchestrator(exceptions *repository.ExceptionRepository) *Orchestrator {
	return &Orchestrator{exceptions: exceptions}
}

// Register adds a cycle with its tick interval. Must be called before Start.
func (o *Orchestrator) Register(cycle Cycle, interval time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loops = append(o.loops, &loop{cycle: cycle, interval: interval})
}

// Start launches every registered loop. Calling Start while already running
// is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		logger.Warn("Scheduler start requested but it is already running")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true

	for _, l := range o.loops {
		o.wg.Add(1)
		go o.runLoop(runCtx, l)
	}

	logger.WithField("loops", len(o.loops)).Info("Scheduler started")
}

// Stop cancels every loop and waits for in-flight cycles to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	cancel := o.cancel
	o.mu.Unlock()

	cancel()
	o.wg.Wait()

	logger.Info("Scheduler stopped")
}

func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// CycleNames lists the registered cycles in registration order.
func (o *Orchestrator) CycleNames() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	names := make([]string, 0, len(o.loops))
	for _, l := range o.loops {
		names = append(names, l.cycle.Name())
	}
	return names
}

// RunOnce triggers a single run of the named cycle, subject to the same
// overlap guard as the scheduled ticks.
func (o *Orchestrator) RunOnce(ctx context.Context, name string) (*CycleReport, error) {
	o.mu.Lock()
	var target *loop
	for _, l := range o.loops {
		if l.cycle.Name() == name {
			target = l
			break
		}
	}
	o.mu.Unlock()

	if target == nil {
		return nil, fmt.Errorf("unknown cycle %q", name)
	}

	if !target.inFlight.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("cycle %q is already running", name)
	}
	defer target.inFlight.Store(false)

	return o.runProtected(ctx, target.cycle)
}

// runLoop runs one cycle immediately, then on every tick until the context
// is cancelled.
func (o *Orchestrator) runLoop(ctx context.Context, l *loop) {
	defer o.wg.Done()

	o.tick(ctx, l)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick(ctx, l)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context, l *loop) {
	if !l.inFlight.CompareAndSwap(false, true) {
		logger.WithField("cycle", l.cycle.Name()).
			Warn("Previous run still in flight, skipping tick")
		return
	}
	defer l.inFlight.Store(false)

	if _, err := o.runProtected(ctx, l.cycle); err != nil {
		logger.WithError(err).
			WithField("cycle", l.cycle.Name()).
			Error("Cycle run failed")
	}
}

// runProtected executes one cycle run, converting panics into captured
// exceptions so a bug in one cycle cannot take the scheduler down.
func (o *Orchestrator) runProtected(ctx context.Context, cycle Cycle) (report *CycleReport, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("cycle %s panicked: %v", cycle.Name(), rec)
			o.capture(ctx, cycle.Name(), fmt.Sprintf("%v", rec), string(debug.Stack()), "fatal")
		}
	}()

	report, err = cycle.RunCycle(ctx)
	if err != nil {
		o.capture(ctx, cycle.Name(), err.Error(), "", "error")
	}
	return report, err
}

func (o *Orchestrator) capture(ctx context.Context, module, message, stack, level string) {
	if o.exceptions == nil {
		return
	}

	// Best effort: persistence failures are logged inside the repository.
	_ = o.exceptions.Create(ctx, &model.Exception{
		Service: "botmanager",
		Module:  module,
		Method:  "RunCycle",
		Message: message,
		Stack:   stack,
		Level:   level,
	})
}
