package conflict

import "donna/internal/models"

// Recommendations lists generic ways to resolve a conflict of the given type.
func Recommendations(c models.Conflict) []string {
	switch c.Type {
	case models.ConflictScheduling:
		return []string{
			"Move one event to a different time slot",
			"Shorten the duration of one or both events",
			"Delegate attendance to another team member",
			"Convert one meeting to asynchronous communication",
		}
	case models.ConflictTravelTime:
		return []string{
			"Reschedule one event to allow travel time",
			"Change one meeting to virtual/remote",
			"Move the meeting location closer",
			"Use faster transportation method",
		}
	case models.ConflictPriority:
		return []string{
			"Handle urgent email before the meeting",
			"Delegate email response to team member",
			"Postpone meeting if email is more critical",
			"Quick response to email, detailed follow-up later",
		}
	}
	return nil
}
