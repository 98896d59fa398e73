package conflict

import "strings"

// Travel bands in minutes, checked from closest to farthest.
var travelBands = []struct {
	minutes  int
	keywords []string
}{
	{5, []string{"room", "floor", "building"}},
	{15, []string{"campus", "office", "center", "complex"}},
	{30, []string{"street", "avenue", "road", "blvd"}},
}

const defaultTravelMinutes = 45

// EstimateTravelTime guesses the minutes needed to get from one location to
// another. It is a keyword heuristic, not a routing lookup: when both locations
// mention a word from the same band that band's estimate is used, otherwise
// the most conservative estimate.
func EstimateTravelTime(from, to string) int {
	from = strings.ToLower(from)
	to = strings.ToLower(to)
	for _, band := range travelBands {
		if mentionsAny(from, band.keywords) && mentionsAny(to, band.keywords) {
			return band.minutes
		}
	}
	return defaultTravelMinutes
}

func mentionsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
