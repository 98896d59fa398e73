package workflow

import (
	"fmt"
	"strings"

	"donna/internal/models"
)

// Summary is the spoken message for one interaction plus the counts behind it.
type Summary struct {
	Message           string `json:"message"`
	NeedsInput        bool   `json:"needs_input"`
	TotalConflicts    int    `json:"total_conflicts"`
	CriticalConflicts int    `json:"critical_conflicts"`
	HighPriorityItems int    `json:"high_priority_items"`
}

// PrepareSummary turns the cycle's findings into a short message. Input is
// needed from the user when there is a critical conflict or a pressing item.
func PrepareSummary(items []ImportantItem, conflicts []models.Conflict) Summary {
	var critical []models.Conflict
	for _, c := range conflicts {
		if c.Severity == models.SeverityCritical {
			critical = append(critical, c)
		}
	}
	var pressing []ImportantItem
	for _, it := range items {
		if it.Urgency.Pressing() {
			pressing = append(pressing, it)
		}
	}

	var parts []string
	if len(critical) > 0 {
		parts = append(parts, fmt.Sprintf("You have %d critical %s", len(critical), plural(len(critical), "conflict", "conflicts")))
	}
	if len(pressing) > 0 {
		parts = append(parts, fmt.Sprintf("You have %d high-priority %s requiring attention", len(pressing), plural(len(pressing), "item", "items")))
	}
	if other := len(conflicts) - len(critical); other > 0 {
		parts = append(parts, fmt.Sprintf("You have %d other scheduling %s", other, plural(other, "issue", "issues")))
	}
	if len(parts) == 0 {
		parts = append(parts, "Your schedule looks good, but I wanted to check in")
	}

	var b strings.Builder
	b.WriteString("Hello! ")
	b.WriteString(strings.Join(parts, ", and "))
	b.WriteString(". ")
	if len(critical) > 0 {
		fmt.Fprintf(&b, "Most urgent: %s. ", critical[0].SuggestedAction)
	}
	if len(pressing) > 0 {
		fmt.Fprintf(&b, "Priority item: %s. ", firstNonEmpty(pressing[0].Summary, pressing[0].Title))
	}
	b.WriteString("How would you like me to help you?")

	return Summary{
		Message:           b.String(),
		NeedsInput:        len(critical) > 0 || len(pressing) > 0,
		TotalConflicts:    len(conflicts),
		CriticalConflicts: len(critical),
		HighPriorityItems: len(pressing),
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
