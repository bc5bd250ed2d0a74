package main

import (
	"strings"
	"time"
)

const (
	weightFocusPrimary     = 2.5
	weightFocusSecondary   = 1.2
	weightBest             = 0.8
	weightWorst            = 1.6
	weightIntensityNudge   = 0.9
	weightPerformanceNudge = 0.9
	weightVoiceNudge       = 0.6
	weightToneFactor       = 0.6
	hookBonusFirst         = 1.1
	hookBonusEach          = 0.35
	hookBonusCap           = 1.8

	singleAdChance = 0.55
	minClassifieds = 3
	maxClassifieds = 6
)

var (
	chaosTags     = []string{"sirens", "crimewave", "night"}
	calmTags      = []string{"calm", "community"}
	hardTimesTags = []string{"grim", "fear", "security", "bail"}
	goodTimesTags = []string{"victory", "justice", "relief"}
)

// Report is everything generated for one finished shift. It is computed
// once when the shift ends and cached on the archive.
type Report struct {
	CaseFile    string        `json:"caseFile"`
	Outcome     Outcome       `json:"outcome"`
	Reason      EndReason     `json:"reason"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Summary     ReportSummary `json:"summary"`
	Tone        ToneProfile   `json:"tone"`
	Article     Article       `json:"article"`
	Ads         []Ad          `json:"ads"`
	Classifieds []Classified  `json:"classifieds"`
}

// matchInput is what ad and classified weighting looks at.
type matchInput struct {
	Summary ReportSummary
	Tone    ToneProfile
	Voice   string
	Hooks   []string
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			set[t] = true
		}
	}
	return set
}

func hasAny(set map[string]bool, tags []string) bool {
	for _, t := range tags {
		if set[t] {
			return true
		}
	}
	return false
}

// contentWeight scores an ad or classified by its tags against the report.
func contentWeight(tags []string, in matchInput) float64 {
	set := tagSet(tags)
	s := in.Summary
	w := 1.0

	if set[string(s.FocusCategory)] {
		w += weightFocusPrimary
	}
	if s.SecondaryCategory != s.FocusCategory && set[string(s.SecondaryCategory)] {
		w += weightFocusSecondary
	}
	if set[string(s.BestCategory)] {
		w += weightBest
	}
	if set[string(s.WorstCategory)] {
		w += weightWorst
	}

	switch s.IntensityBand {
	case intensityChaos:
		if hasAny(set, chaosTags) {
			w += weightIntensityNudge
		}
	case intensityCalm:
		if hasAny(set, calmTags) {
			w += weightIntensityNudge
		}
	}

	switch {
	case isStrugglingBand(s.PerformanceBand):
		if hasAny(set, hardTimesTags) {
			w += weightPerformanceNudge
		}
	case isWinningBand(s.PerformanceBand):
		if hasAny(set, goodTimesTags) {
			w += weightPerformanceNudge
		}
	}

	if in.Voice != "" && (set[in.Voice] || set[strings.ReplaceAll(in.Voice, "_", "")]) {
		w += weightVoiceNudge
	}

	for tag := range set {
		w += weightToneFactor * in.Tone.Weight(tag)
	}

	matches := 0
	for _, hook := range in.Hooks {
		if set[hook] {
			matches++
		}
	}
	if matches > 0 {
		bonus := hookBonusFirst + hookBonusEach*float64(matches-1)
		if bonus > hookBonusCap {
			bonus = hookBonusCap
		}
		w += bonus
	}
	return w
}

func uniqueAds(ads []Ad) []Ad {
	seen := map[string]bool{}
	out := make([]Ad, 0, len(ads))
	for _, a := range ads {
		id := a.ID
		if id == "" {
			id = a.Name
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, a)
	}
	return out
}

func uniqueClassifieds(list []Classified) []Classified {
	seen := map[string]bool{}
	out := make([]Classified, 0, len(list))
	for _, c := range list {
		id := c.ID
		if id == "" {
			id = c.Heading + "|" + c.Body
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, c)
	}
	return out
}

// selectAds picks one ad slightly more often than two. An empty pool falls
// back to the built-in ads.
func selectAds(r Rand, ads []Ad, in matchInput) []Ad {
	ads = uniqueAds(ads)
	if len(ads) == 0 {
		ads = uniqueAds(builtinPools().Ads)
	}
	n := 2
	if roll(r, singleAdChance) {
		n = 1
	}
	pool := make([]weighted[Ad], 0, len(ads))
	for _, a := range ads {
		pool = append(pool, weighted[Ad]{Item: a, Weight: contentWeight(a.Tags, in)})
	}
	return pickUnique(r, pool, n)
}

func selectClassifieds(r Rand, list []Classified, in matchInput) []Classified {
	list = uniqueClassifieds(list)
	if len(list) == 0 {
		list = uniqueClassifieds(builtinPools().Classifieds)
	}
	n := randIntInclusive(r, minClassifieds, maxClassifieds)
	pool := make([]weighted[Classified], 0, len(list))
	for _, c := range list {
		pool = append(pool, weighted[Classified]{Item: c, Weight: contentWeight(c.Tags, in)})
	}
	return pickUnique(r, pool, n)
}

// buildReport runs the whole pipeline for a finished shift: summary, tone,
// article, then ads and classifieds weighted by the article's hooks.
func buildReport(stats *SessionStats, outcome Outcome, reason EndReason, pools *ContentPools, r Rand, now time.Time) Report {
	if pools == nil {
		pools = builtinPools()
	}
	summary := summarizeSession(stats, outcome, reason)
	tone := buildToneProfile(outcome, reason, stats)
	article := buildArticle(summary, tone, stats.Setup, pools, r, now)
	in := matchInput{Summary: summary, Tone: tone, Voice: article.Voice, Hooks: article.NarrativeHooks}
	return Report{
		CaseFile:    stats.CaseFile,
		Outcome:     outcome,
		Reason:      reason,
		GeneratedAt: now,
		Summary:     summary,
		Tone:        tone,
		Article:     article,
		Ads:         selectAds(r, pools.Ads, in),
		Classifieds: selectClassifieds(r, pools.Classifieds, in),
	}
}
