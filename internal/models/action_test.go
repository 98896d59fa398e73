package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntentContext_Target(t *testing.T) {
	about := IntentContext{
		Conflicts: []Conflict{
			{ConflictID: "travel_a_b", Severity: SeverityMedium, EventsInvolved: []string{"a", "b"}},
			{ConflictID: "schedule_b_c", Severity: SeverityCritical, EventsInvolved: []string{"b", "c"}},
			{ConflictID: "schedule_c_d", Severity: SeverityCritical, EventsInvolved: []string{"c", "d"}},
		},
		Events: []CalendarEvent{{ID: "c", Title: "Client Call"}},
	}

	top, ok := about.TopConflict()
	assert.True(t, ok)
	assert.Equal(t, "schedule_b_c", top.ConflictID)
	assert.Equal(t, "c", about.TargetEventID())

	ev, ok := about.Event("c")
	assert.True(t, ok)
	assert.Equal(t, "Client Call", ev.Title)
	_, ok = about.Event("zz")
	assert.False(t, ok)

	assert.Equal(t, "", IntentContext{}.TargetEventID())
	priority := IntentContext{Conflicts: []Conflict{{Severity: SeverityHigh, EventsInvolved: []string{"standup"}, EmailsInvolved: []string{"m1"}}}}
	assert.Equal(t, "standup", priority.TargetEventID())
}
