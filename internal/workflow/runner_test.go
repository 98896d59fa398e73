package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"donna/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// immediate replaces time.After so loops do not actually sleep.
func immediate(delays *[]time.Duration) func(time.Duration) <-chan time.Time {
	return func(d time.Duration) <-chan time.Time {
		if delays != nil {
			*delays = append(*delays, d)
		}
		ch := make(chan time.Time, 1)
		ch <- testNow
		return ch
	}
}

func newTestRunner(t *testing.T, deps Deps, observers ...CycleObserver) *Runner {
	t.Helper()
	r := NewRunner(testLogger(), newTestGraph(t, deps), DefaultRunnerConfig(), observers...)
	r.after = immediate(nil)
	return r
}

func TestRunner_RunOnce(t *testing.T) {
	obs := &countingObserver{}
	r := newTestRunner(t, Deps{Emails: &fakeEmails{}, Calendar: &fakeCalendar{events: overlappingEvents()}}, obs)

	st, err := r.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Same(t, r.State(), st)
	assert.Len(t, st.Conflicts, 1)
	assert.Equal(t, 1, obs.cycles)
	assert.False(t, r.Status().Running)
	assert.Equal(t, 1, r.Status().Conflicts)
}

func TestRunner_ForceCheckBypassesRouting(t *testing.T) {
	notifier := &fakeNotifier{delivery: models.Delivery{Success: true}}
	r := newTestRunner(t, Deps{
		Emails:   &fakeEmails{},
		Calendar: &fakeCalendar{events: overlappingEvents()},
		Notifier: notifier,
	})

	st, err := r.ForceCheck(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StepWait, st.CurrentStep)
	assert.Len(t, st.Conflicts, 1)
	assert.Empty(t, notifier.messages)
	assert.True(t, st.LastCheck.IsZero(), "monitor step is not part of a forced check")
}

func TestRunner_ForceCheckRunsEvenWhenCircuitOpen(t *testing.T) {
	cal := &fakeCalendar{events: quietEvents()}
	r := newTestRunner(t, Deps{Emails: &fakeEmails{}, Calendar: cal})
	r.State().ErrorCount = 99

	st, err := r.ForceCheck(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, cal.calls)
	assert.Equal(t, StepWait, st.CurrentStep)
}

func TestRunner_ForceCheckFatal(t *testing.T) {
	r := newTestRunner(t, Deps{
		Emails:   &fakeEmails{err: fmt.Errorf("token revoked: %w", models.ErrUnauthorized)},
		Calendar: &fakeCalendar{},
	})

	st, err := r.ForceCheck(context.Background())

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Equal(t, StepFetchEmails, st.CurrentStep)
}

func TestRunner_MonitorCircuitBreaker(t *testing.T) {
	obs := &countingObserver{}
	r := newTestRunner(t, Deps{
		Emails:   &fakeEmails{err: errors.New("timeout")},
		Calendar: &fakeCalendar{err: errors.New("timeout")},
	}, obs)

	err := r.Monitor(context.Background())

	require.NoError(t, err)
	st := r.State()
	assert.False(t, st.MonitoringActive)
	assert.Greater(t, st.ErrorCount, MonitorErrorLimit)
	assert.Equal(t, 6, obs.cycles)
}

func TestRunner_MonitorStopFinishesIteration(t *testing.T) {
	emails := &fakeEmails{}
	cal := &fakeCalendar{events: quietEvents()}
	var r *Runner
	obs := &countingObserver{onCycle: func(st *State) {
		// The iteration in progress completes before Stop is honoured.
		assert.Equal(t, StepFetchEmails, st.CurrentStep)
		r.Stop()
	}}
	r = newTestRunner(t, Deps{Emails: emails, Calendar: cal}, obs)

	err := r.Monitor(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, obs.cycles)
	assert.Equal(t, 1, cal.calls)
	assert.False(t, r.State().MonitoringActive)
	assert.Equal(t, testNow, r.State().LastCheck)

	r.Stop() // second call is a no-op
}

func TestRunner_MonitorSleepsBetweenCycles(t *testing.T) {
	var delays []time.Duration
	obs := &countingObserver{}
	var r *Runner
	obs.onCycle = func(*State) {
		if obs.cycles == 3 {
			r.Stop()
		}
	}
	r = newTestRunner(t, Deps{Emails: &fakeEmails{}, Calendar: &fakeCalendar{}}, obs)
	r.after = immediate(&delays)

	require.NoError(t, r.Monitor(context.Background()))

	assert.Equal(t, 3, obs.cycles)
	// Quiet cycles end at detect_conflicts -> monitor: the long idle delay.
	assert.Equal(t, StepFetchEmails, r.State().CurrentStep)
	assert.Equal(t, StepDetectConflicts, r.State().LastStep)
	assert.Equal(t, []time.Duration{900 * time.Second, 900 * time.Second, 900 * time.Second}, delays)
}

func TestRunner_MonitorSleepsShorterAfterActions(t *testing.T) {
	var delays []time.Duration
	var r *Runner
	obs := &countingObserver{onCycle: func(*State) { r.Stop() }}
	exec := &fakeExecutor{}
	r = newTestRunner(t, Deps{
		Emails:   &fakeEmails{},
		Calendar: &fakeCalendar{events: overlappingEvents()},
		Analyzer: &fakeAnalyzer{intent: models.Intent{Intent: "cancel_meeting", Actions: []models.Action{
			{Type: "cancel_meeting", Parameters: map[string]any{"event_id": "client"}},
		}}},
		Notifier: &fakeNotifier{delivery: models.Delivery{Success: true}, reply: "cancel the client call"},
		Executor: exec,
	}, obs)
	r.after = immediate(&delays)

	require.NoError(t, r.Monitor(context.Background()))

	require.Len(t, exec.executed, 1)
	assert.Equal(t, StepExecuteActions, r.State().LastStep)
	assert.False(t, r.State().NeedsUserInput)
	assert.Equal(t, []time.Duration{300 * time.Second}, delays)
}

func TestRunner_MonitorSleepsShortWhileWaitingForReply(t *testing.T) {
	var delays []time.Duration
	var r *Runner
	obs := &countingObserver{onCycle: func(*State) { r.Stop() }}
	doubleBooked := []models.CalendarEvent{
		{ID: "a", Title: "Board", StartTime: testNow.Add(3 * time.Hour), EndTime: testNow.Add(4 * time.Hour)},
		{ID: "b", Title: "Dentist", StartTime: testNow.Add(3 * time.Hour), EndTime: testNow.Add(4 * time.Hour)},
	}
	r = newTestRunner(t, Deps{
		Emails:   &fakeEmails{},
		Calendar: &fakeCalendar{events: doubleBooked},
		Notifier: &fakeNotifier{delivery: models.Delivery{Success: true}},
	}, obs)
	r.after = immediate(&delays)

	require.NoError(t, r.Monitor(context.Background()))

	assert.True(t, r.State().NeedsUserInput)
	assert.Equal(t, []time.Duration{30 * time.Second}, delays)
}

func TestRunner_MonitorContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	obs := &countingObserver{onCycle: func(*State) { cancel() }}
	r := newTestRunner(t, Deps{Emails: &fakeEmails{}, Calendar: &fakeCalendar{}}, obs)

	err := r.Monitor(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, r.State().MonitoringActive)
}

func TestRunner_MonitorUnauthorized(t *testing.T) {
	r := newTestRunner(t, Deps{
		Emails:   &fakeEmails{err: fmt.Errorf("oauth: %w", models.ErrUnauthorized)},
		Calendar: &fakeCalendar{},
	})

	err := r.Monitor(context.Background())

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.False(t, r.State().MonitoringActive)
}

func TestSleepFor(t *testing.T) {
	cfg := DefaultRunnerConfig()
	cases := []struct {
		name  string
		step  Step
		last  Step
		input bool
		want  time.Duration
	}{
		{"needs input", StepMonitor, "", true, 30 * time.Second},
		{"needs input wins over early step", StepFetchEmails, StepFetchEmails, true, 30 * time.Second},
		{"after actions", StepExecuteActions, "", false, 300 * time.Second},
		{"after actions rewound by monitor", StepFetchEmails, StepExecuteActions, false, 300 * time.Second},
		{"stopped in an early step", StepFetchEmails, StepAnalyzeCalendar, false, 300 * time.Second},
		{"early step without history", StepAnalyzeCalendar, "", false, 300 * time.Second},
		{"quiet cycle", StepFetchEmails, StepDetectConflicts, false, 900 * time.Second},
		{"reply processed, nothing to do", StepFetchEmails, StepProcessResponse, false, 900 * time.Second},
		{"otherwise", StepWait, "", false, 900 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := NewState()
			st.CurrentStep = tc.step
			st.LastStep = tc.last
			st.NeedsUserInput = tc.input
			assert.Equal(t, tc.want, SleepFor(st, cfg))
		})
	}
}
