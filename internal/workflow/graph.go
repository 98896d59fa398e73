package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"donna/internal/conflict"
)

const (
	// OnceErrorLimit is the circuit-breaker ceiling for a single pass.
	OnceErrorLimit = 5
	// MonitorErrorLimit is the ceiling for the long-running monitor loop.
	MonitorErrorLimit = 10

	defaultLookback = 24 * time.Hour
	defaultHorizon  = 7 * 24 * time.Hour
	defaultRenotify = 24 * time.Hour

	// A full pass visits ten nodes; anything beyond this is a routing bug.
	maxTransitions = 50
)

// ErrTooManyTransitions means a run did not reach END.
var ErrTooManyTransitions = errors.New("workflow did not terminate")

type nodeFunc func(ctx context.Context, st *State) error

// edgeFunc picks the next step. limit is the circuit-breaker ceiling of the run.
type edgeFunc func(st *State, limit int) Step

// Graph is the table of workflow nodes and the edges between them.
type Graph struct {
	logger   *slog.Logger
	deps     Deps
	detector *conflict.Detector
	now      func() time.Time

	lookback      time.Duration
	horizon       time.Duration
	renotifyAfter time.Duration
	skipAnalysis  bool

	nodes map[Step]nodeFunc
	edges map[Step]edgeFunc
}

// Option configures a Graph.
type Option func(*Graph)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Graph) { g.now = now }
}

// WithSkipAnalysis turns analyze_emails and analyze_calendar into pass-through
// steps, for the low-latency "just read the inbox" configuration.
func WithSkipAnalysis() Option {
	return func(g *Graph) { g.skipAnalysis = true }
}

// WithLookback sets how far back fetch_emails reads.
func WithLookback(d time.Duration) Option {
	return func(g *Graph) { g.lookback = d }
}

// WithHorizon sets how far ahead fetch_calendar reads.
func WithHorizon(d time.Duration) Option {
	return func(g *Graph) { g.horizon = d }
}

// WithRenotifyAfter sets how long a conflict stays quiet after the user was
// told about it. Zero reports every conflict on every cycle.
func WithRenotifyAfter(d time.Duration) Option {
	return func(g *Graph) { g.renotifyAfter = d }
}

// NewGraph wires the nodes to their collaborators.
func NewGraph(logger *slog.Logger, deps Deps, opts ...Option) (*Graph, error) {
	if deps.Emails == nil {
		return nil, fmt.Errorf("workflow: email source is required")
	}
	if deps.Calendar == nil {
		return nil, fmt.Errorf("workflow: calendar source is required")
	}

	g := &Graph{
		logger:        logger,
		deps:          deps,
		detector:      conflict.NewDetector(logger),
		now:           time.Now,
		lookback:      defaultLookback,
		horizon:       defaultHorizon,
		renotifyAfter: defaultRenotify,
	}
	for _, opt := range opts {
		opt(g)
	}

	g.nodes = map[Step]nodeFunc{
		StepFetchEmails:        g.fetchEmails,
		StepFetchCalendar:      g.fetchCalendar,
		StepAnalyzeEmails:      g.analyzeEmails,
		StepAnalyzeCalendar:    g.analyzeCalendar,
		StepDetectConflicts:    g.detectConflicts,
		StepPrepareInteraction: g.prepareInteraction,
		StepCallUser:           g.callUser,
		StepProcessResponse:    g.processResponse,
		StepExecuteActions:     g.executeActions,
		StepMonitor:            g.monitor,
	}
	g.edges = map[Step]edgeFunc{
		StepFetchEmails:        always(StepFetchCalendar),
		StepFetchCalendar:      always(StepAnalyzeEmails),
		StepAnalyzeEmails:      always(StepAnalyzeCalendar),
		StepAnalyzeCalendar:    always(StepDetectConflicts),
		StepDetectConflicts:    RouteAfterDetect,
		StepPrepareInteraction: always(StepCallUser),
		StepCallUser:           always(StepProcessResponse),
		StepProcessResponse:    RouteAfterResponse,
		StepExecuteActions:     always(StepMonitor),
		StepMonitor:            always(StepEnd),
	}
	return g, nil
}

// CircuitOpen reports whether a run must stop: too many errors, or monitoring
// switched off.
func CircuitOpen(st *State, limit int) bool {
	return st.ErrorCount > limit || !st.MonitoringActive
}

func always(next Step) edgeFunc {
	return func(st *State, limit int) Step {
		if CircuitOpen(st, limit) {
			return StepEnd
		}
		return next
	}
}

// RouteAfterDetect goes to prepare_user_interaction when there is anything new
// to tell the user, otherwise straight to monitor. Conflicts the user was
// already called about do not count.
func RouteAfterDetect(st *State, limit int) Step {
	if CircuitOpen(st, limit) {
		return StepEnd
	}
	return nextAfterDetect(st)
}

func nextAfterDetect(st *State) Step {
	if len(st.FreshConflicts) > 0 || len(st.ImportantItems) > 0 {
		return StepPrepareInteraction
	}
	return StepMonitor
}

// RouteAfterResponse goes to execute_actions when the user asked for something.
func RouteAfterResponse(st *State, limit int) Step {
	if CircuitOpen(st, limit) {
		return StepEnd
	}
	return nextAfterResponse(st)
}

func nextAfterResponse(st *State) Step {
	if len(st.PendingActions) > 0 {
		return StepExecuteActions
	}
	return StepMonitor
}

// Run drives st from fetch_emails to END with the single-pass error ceiling.
func (g *Graph) Run(ctx context.Context, st *State) error {
	return g.run(ctx, st, StepFetchEmails, OnceErrorLimit)
}

func (g *Graph) run(ctx context.Context, st *State, entry Step, limit int) error {
	if CircuitOpen(st, limit) {
		g.logger.Warn("Circuit open, not starting workflow", "error_count", st.ErrorCount, "monitoring_active", st.MonitoringActive)
		return nil
	}

	step := entry
	for i := 0; i < maxTransitions; i++ {
		if err := g.runStep(ctx, st, step); err != nil {
			return err
		}
		next := g.edges[step](st, limit)
		g.logger.Debug("Workflow transition", "from", step, "to", next)
		if next == StepEnd {
			return nil
		}
		step = next
	}
	return ErrTooManyTransitions
}

// runStep executes one node. Only fatal errors come back; everything else has
// already been counted in st.ErrorCount.
func (g *Graph) runStep(ctx context.Context, st *State, step Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	node, ok := g.nodes[step]
	if !ok {
		return fmt.Errorf("unknown workflow step %q", step)
	}
	if step != StepMonitor {
		st.LastStep = step
	}
	if err := node(ctx, st); err != nil {
		return fmt.Errorf("step %s: %w", step, err)
	}
	return nil
}
