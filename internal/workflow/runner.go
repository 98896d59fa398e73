package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"donna/internal/models"
)

// forceCheckSteps is the fixed sequence ForceCheck runs, ignoring graph routing.
var forceCheckSteps = []Step{
	StepFetchEmails,
	StepFetchCalendar,
	StepAnalyzeEmails,
	StepAnalyzeCalendar,
	StepDetectConflicts,
}

// RunnerConfig holds the loop timings and error ceilings.
type RunnerConfig struct {
	OnceErrorLimit    int
	MonitorErrorLimit int

	NeedsInputDelay time.Duration // user has been asked something
	ActiveDelay     time.Duration // right after actions, or still early in the pipeline
	IdleDelay       time.Duration
	RetryDelay      time.Duration // after a failed iteration
}

// DefaultRunnerConfig returns the production timings.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		OnceErrorLimit:    OnceErrorLimit,
		MonitorErrorLimit: MonitorErrorLimit,
		NeedsInputDelay:   30 * time.Second,
		ActiveDelay:       300 * time.Second,
		IdleDelay:         900 * time.Second,
		RetryDelay:        60 * time.Second,
	}
}

// CycleObserver is told about every completed graph run.
type CycleObserver interface {
	ObserveCycle(st *State, err error)
}

// Runner owns one State and drives the Graph over it. A Runner serves one agent
// session; concurrent sessions each get their own.
type Runner struct {
	logger    *slog.Logger
	graph     *Graph
	cfg       RunnerConfig
	state     *State
	observers []CycleObserver

	running  atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}

	after func(time.Duration) <-chan time.Time
}

// NewRunner creates a Runner with a fresh State.
func NewRunner(logger *slog.Logger, graph *Graph, cfg RunnerConfig, observers ...CycleObserver) *Runner {
	return &Runner{
		logger:    logger,
		graph:     graph,
		cfg:       cfg,
		state:     NewState(),
		observers: observers,
		stopCh:    make(chan struct{}),
		after:     time.After,
	}
}

// State returns the runner's state. Only read it while no run is in progress.
func (r *Runner) State() *State {
	return r.state
}

// RunOnce drives the graph from fetch_emails until it ends, once.
func (r *Runner) RunOnce(ctx context.Context) (*State, error) {
	r.running.Store(true)
	defer r.running.Store(false)

	r.state.CurrentStep = StepFetchEmails
	r.logger.Info("Running workflow once", "error_count", r.state.ErrorCount)

	err := r.graph.run(ctx, r.state, StepFetchEmails, r.cfg.OnceErrorLimit)
	r.observe(err)
	if err != nil {
		r.logger.Error("Workflow run failed", "error", err)
		return r.state, err
	}
	r.logger.Info("Workflow run complete",
		"emails", len(r.state.Emails),
		"events", len(r.state.CalendarEvents),
		"conflicts", len(r.state.Conflicts),
		"important_items", len(r.state.ImportantItems),
	)
	return r.state, nil
}

// ForceCheck fetches, analyzes and detects conflicts right now, in a fixed order
// that bypasses the graph's routing, then parks the state at StepWait. Nobody
// is called and no actions run.
func (r *Runner) ForceCheck(ctx context.Context) (*State, error) {
	r.running.Store(true)
	defer r.running.Store(false)

	r.logger.Info("Running email and calendar check")
	r.state.CurrentStep = StepFetchEmails
	for _, step := range forceCheckSteps {
		if err := r.graph.runStep(ctx, r.state, step); err != nil {
			r.logger.Error("Forced check failed", "step", step, "error", err)
			r.state.CurrentStep = StepFetchEmails
			r.observe(err)
			return r.state, err
		}
	}
	r.state.CurrentStep = StepWait
	r.observe(nil)
	return r.state, nil
}

// Monitor runs the graph repeatedly until Stop is called, ctx is cancelled, the
// error ceiling is exceeded, or a collaborator reports missing credentials.
// Stopping lets the current iteration finish.
func (r *Runner) Monitor(ctx context.Context) error {
	r.running.Store(true)
	defer r.running.Store(false)

	r.state.MonitoringActive = true
	r.logger.Info("Starting monitor loop")

	for {
		if r.stopping.Load() {
			r.state.MonitoringActive = false
			r.logger.Info("Monitor loop stopped")
			return nil
		}
		if r.state.ErrorCount > r.cfg.MonitorErrorLimit {
			r.state.MonitoringActive = false
			r.logger.Error("Too many errors, stopping monitor loop", "error_count", r.state.ErrorCount, "limit", r.cfg.MonitorErrorLimit)
			return nil
		}

		err := r.graph.run(ctx, r.state, StepFetchEmails, r.cfg.MonitorErrorLimit)
		r.observe(err)

		if ctxErr := ctx.Err(); ctxErr != nil {
			r.state.MonitoringActive = false
			return ctxErr
		}
		if errors.Is(err, models.ErrUnauthorized) {
			r.state.MonitoringActive = false
			return err
		}

		delay := SleepFor(r.state, r.cfg)
		if err != nil {
			r.state.ErrorCount++
			delay = r.cfg.RetryDelay
			r.logger.Error("Monitor iteration failed", "error", err, "error_count", r.state.ErrorCount)
		}

		r.logger.Debug("Sleeping until next check", "delay", delay, "step", r.state.CurrentStep)
		if !r.wait(ctx, delay) {
			r.state.MonitoringActive = false
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.logger.Info("Monitor loop stopped")
			return nil
		}
	}
}

// SleepFor picks the pause before the next iteration: short while waiting on
// the user, medium right after actions or when the run stopped early in the
// pipeline, long after a quiet cycle.
func SleepFor(st *State, cfg RunnerConfig) time.Duration {
	step := st.LastStep
	if step == "" {
		step = st.CurrentStep
	}
	switch {
	case st.NeedsUserInput:
		return cfg.NeedsInputDelay
	case step == StepExecuteActions:
		return cfg.ActiveDelay
	case step == StepFetchEmails, step == StepFetchCalendar,
		step == StepAnalyzeEmails, step == StepAnalyzeCalendar:
		return cfg.ActiveDelay
	default:
		return cfg.IdleDelay
	}
}

// wait returns false when interrupted by Stop or ctx.
func (r *Runner) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-r.after(d):
		return !r.stopping.Load()
	case <-r.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// Stop asks the monitor loop to finish its current iteration and exit.
// It is safe to call from any goroutine, more than once.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.stopping.Store(true)
		close(r.stopCh)
	})
}

// HandleSignals calls Stop on SIGINT or SIGTERM. The returned func releases the
// signal handler.
func (r *Runner) HandleSignals() func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			r.logger.Info("Received signal, finishing current iteration", "signal", sig)
			r.Stop()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// Status is a snapshot of the runner for display.
type Status struct {
	Running        bool      `json:"running"`
	CurrentStep    Step      `json:"current_step"`
	LastCheck      time.Time `json:"last_check"`
	ErrorCount     int       `json:"error_count"`
	Emails         int       `json:"total_emails"`
	CalendarEvents int       `json:"total_calendar_events"`
	Conflicts      int       `json:"conflicts"`
	ImportantItems int       `json:"important_items"`
}

// Status reports counts from the last run.
func (r *Runner) Status() Status {
	return Status{
		Running:        r.running.Load(),
		CurrentStep:    r.state.CurrentStep,
		LastCheck:      r.state.LastCheck,
		ErrorCount:     r.state.ErrorCount,
		Emails:         len(r.state.Emails),
		CalendarEvents: len(r.state.CalendarEvents),
		Conflicts:      len(r.state.Conflicts),
		ImportantItems: len(r.state.ImportantItems),
	}
}

func (r *Runner) observe(err error) {
	for _, o := range r.observers {
		o.ObserveCycle(r.state, err)
	}
}
