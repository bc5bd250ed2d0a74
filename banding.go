package main

const (
	bandExcellent  = "excellent"
	bandStrong     = "strong"
	bandMixed      = "mixed"
	bandStruggling = "struggling"
	bandDire       = "dire"

	actionsQuiet   = "quiet"
	actionsBusy    = "busy"
	actionsNonstop = "nonstop"

	intensityCalm   = "calm"
	intensitySteady = "steady"
	intensityChaos  = "chaos"
)

func rateBand(rate float64) string {
	switch {
	case rate >= 0.78:
		return bandExcellent
	case rate >= 0.65:
		return bandStrong
	case rate >= 0.50:
		return bandMixed
	case rate >= 0.35:
		return bandStruggling
	default:
		return bandDire
	}
}

func actionsBand(total int) string {
	switch {
	case total <= 8:
		return actionsQuiet
	case total <= 16:
		return actionsBusy
	default:
		return actionsNonstop
	}
}

func intensityBand(total int) string {
	switch actionsBand(total) {
	case actionsQuiet:
		return intensityCalm
	case actionsBusy:
		return intensitySteady
	default:
		return intensityChaos
	}
}

// successShare renders a rate as newsroom wording instead of a raw percentage.
func successShare(rate float64) string {
	switch rateBand(rate) {
	case bandExcellent:
		return "nearly every call"
	case bandStrong:
		return "most calls"
	case bandMixed:
		return "about half the calls"
	case bandStruggling:
		return "barely a third of the calls"
	default:
		return "almost none of the calls"
	}
}

func successRate(success, fail int) float64 {
	total := success + fail
	if total <= 0 {
		return 0
	}
	return float64(success) / float64(total)
}

func isStrugglingBand(band string) bool {
	return band == bandDire || band == bandStruggling
}

func isWinningBand(band string) bool {
	return band == bandExcellent || band == bandStrong
}

func clampInt(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
