package main

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	voiceTough           = "tough"
	voiceCommunity       = "community"
	voiceSupportive      = "supportive"
	voiceSkeptical       = "skeptical"
	voiceInternalAffairs = "internal_affairs"

	paragraphMinWords     = 90
	paragraphMinFragments = 3
	paragraphMergeWords   = 35
	focusFragments        = 2
	asideChance           = 0.7
	setbackChance         = 0.5
	blotterLineCount      = 3

	fallbackMasthead = "The Precinct Ledger"
	fallbackBlotter  = "{district}: officers report a quiet stretch."
)

var voiceOrder = []string{voiceTough, voiceCommunity, voiceSupportive, voiceSkeptical, voiceInternalAffairs}

type Article struct {
	Masthead       string   `json:"masthead"`
	Kicker         string   `json:"kicker"`
	Dateline       string   `json:"dateline"`
	Headline       string   `json:"headline"`
	Subhead        string   `json:"subhead"`
	BodyParagraphs []string `json:"bodyParagraphs"`
	BlotterLines   []string `json:"blotterLines"`
	EditorialAside string   `json:"editorialAside,omitempty"`
	Voice          string   `json:"voice"`
	NarrativeHooks []string `json:"narrativeHooks"`
}

type hookSet map[string]struct{}

func (h hookSet) add(hooks []string) {
	for _, hook := range hooks {
		hook = strings.ToLower(strings.TrimSpace(hook))
		if hook != "" {
			h[hook] = struct{}{}
		}
	}
}

func (h hookSet) sorted() []string {
	out := make([]string, 0, len(h))
	for hook := range h {
		out = append(out, hook)
	}
	sort.Strings(out)
	return out
}

// fragmentWeight is 1 plus the tone weight of every tag on the fragment.
func fragmentWeight(f Fragment, tone ToneProfile) float64 {
	w := 1.0
	for _, tag := range f.Tags {
		w += tone.Weight(tag)
	}
	return w
}

func weighFragments(list []Fragment, tone ToneProfile) []weighted[Fragment] {
	out := make([]weighted[Fragment], 0, len(list))
	for _, f := range list {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		out = append(out, weighted[Fragment]{Item: f, Weight: fragmentWeight(f, tone)})
	}
	return out
}

func pickFragment(r Rand, list []Fragment, tone ToneProfile) (Fragment, bool) {
	pool := weighFragments(list, tone)
	i := weightedPick(r, pool)
	if i < 0 {
		return Fragment{}, false
	}
	return pool[i].Item, true
}

func withoutTexts(list []Fragment, used map[string]bool) []Fragment {
	out := make([]Fragment, 0, len(list))
	for _, f := range list {
		if !used[f.Text] {
			out = append(out, f)
		}
	}
	return out
}

// voiceWeights biases the editorial voice by how the shift went.
func voiceWeights(band string, dirtyCop bool) []weighted[string] {
	w := map[string]float64{
		voiceTough:           1,
		voiceCommunity:       1,
		voiceSupportive:      1,
		voiceSkeptical:       1,
		voiceInternalAffairs: 0.2,
	}
	switch {
	case isWinningBand(band):
		w[voiceSupportive] += 1.5
		w[voiceCommunity] += 1
	case isStrugglingBand(band):
		w[voiceTough] += 1.5
		w[voiceSkeptical] += 1.5
	default:
		w[voiceSkeptical] += 1
		w[voiceCommunity] += 0.5
	}
	if dirtyCop {
		w[voiceInternalAffairs] += 2.5
		w[voiceSkeptical] += 0.5
	}
	out := make([]weighted[string], 0, len(voiceOrder))
	for _, v := range voiceOrder {
		out = append(out, weighted[string]{Item: v, Weight: w[v]})
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// packParagraphs fills the first paragraph until it has enough words and
// fragments, sends the rest to a second one, and folds a short second
// paragraph back into the first.
func packParagraphs(fragments []string) []string {
	var first, second []string
	words := 0
	for _, f := range fragments {
		if len(second) == 0 && (words < paragraphMinWords || len(first) < paragraphMinFragments) {
			first = append(first, f)
			words += wordCount(f)
			continue
		}
		second = append(second, f)
	}
	if len(first) == 0 {
		return []string{}
	}
	p1 := strings.Join(first, " ")
	if len(second) == 0 {
		return []string{p1}
	}
	p2 := strings.Join(second, " ")
	if wordCount(p2) < paragraphMergeWords {
		return []string{p1 + " " + p2}
	}
	return []string{p1, p2}
}

func formatDateline(districts []string, caseFile string, now time.Time) string {
	place := "CITY DESK"
	if len(districts) > 0 {
		place = strings.ToUpper(districts[0])
	}
	return fmt.Sprintf("%s, %s (case %s)", place, now.Format("January 2, 2006"), caseFile)
}

// buildArticle assembles the shift report article. Every section falls back
// to the built-in pools so an article is always produced.
func buildArticle(summary ReportSummary, tone ToneProfile, setup SetupRoll, pools *ContentPools, r Rand, now time.Time) Article {
	builtin := builtinPools()
	ctx := summary.Context
	hooks := hookSet{}

	pick := func(list, fallback []Fragment) (Fragment, bool) {
		if f, ok := pickFragment(r, list, tone); ok {
			return f, true
		}
		return pickFragment(r, fallback, tone)
	}
	text := func(f Fragment) string {
		hooks.add(f.Hooks)
		return fillTemplate(f.Text, ctx)
	}

	art := Article{
		Masthead: fallbackMasthead,
		Dateline: formatDateline(summary.Districts, ctx["caseFile"], now),
	}
	mastheads := pools.Mastheads
	if len(mastheads) == 0 {
		mastheads = builtin.Mastheads
	}
	if f, ok := pickOne(r, mastheads); ok {
		art.Masthead = fillTemplate(f.Text, ctx)
	}
	key := summary.OutcomeKey
	if f, ok := pick(pools.Kickers[key], builtin.Kickers[key]); ok {
		art.Kicker = text(f)
	}
	if f, ok := pick(pools.Headlines[key], builtin.Headlines[key]); ok {
		art.Headline = text(f)
	}
	if f, ok := pick(pools.Subheads[summary.PerformanceBand], builtin.Subheads[summary.PerformanceBand]); ok {
		art.Subhead = text(f)
	}

	var body []string
	appendText := func(f Fragment) {
		if s := text(f); s != "" {
			body = append(body, s)
		}
	}

	if f, ok := pick(pools.Openings[key], builtin.Openings[key]); ok {
		appendText(f)
	}

	used := map[string]bool{}
	focusPool := pools.Focus[summary.FocusCategory]
	if len(focusPool) == 0 {
		focusPool = builtin.Focus[summary.FocusCategory]
	}
	for _, f := range pickUnique(r, weighFragments(focusPool, tone), focusFragments) {
		used[f.Text] = true
		appendText(f)
	}

	third := summary.BestCategory
	if third == summary.FocusCategory {
		third = summary.SecondaryCategory
	}
	thirdPool := withoutTexts(pools.Focus[third], used)
	if len(thirdPool) == 0 {
		thirdPool = withoutTexts(builtin.Focus[third], used)
	}
	if f, ok := pickFragment(r, thirdPool, tone); ok {
		used[f.Text] = true
		appendText(f)
	}

	if roll(r, setbackChance) {
		if f, ok := pick(pools.Setbacks[summary.WorstCategory], builtin.Setbacks[summary.WorstCategory]); ok {
			appendText(f)
		}
	}

	pressurePool := pools.Pressure[summary.IntensityBand]
	if len(pressurePool) == 0 {
		pressurePool = builtin.Pressure[summary.IntensityBand]
	}
	for _, f := range pickUnique(r, weighFragments(pressurePool, tone), randIntInclusive(r, 1, 2)) {
		appendText(f)
	}

	if f, ok := pick(pools.Closings[key], builtin.Closings[key]); ok {
		appendText(f)
	}
	art.BodyParagraphs = packParagraphs(body)

	if i := weightedPick(r, voiceWeights(summary.PerformanceBand, setup.DirtyCop)); i >= 0 {
		art.Voice = voiceOrder[i]
	}
	if roll(r, asideChance) {
		if f, ok := pick(pools.Asides[art.Voice], builtin.Asides[art.Voice]); ok {
			art.EditorialAside = text(f)
		}
	}

	art.BlotterLines = buildBlotter(r, summary, tone, pools, builtin)
	art.NarrativeHooks = hooks.sorted()
	return art
}

// buildBlotter draws three distinct lines from the outcome and focus pools
// and gives each its own district.
func buildBlotter(r Rand, summary ReportSummary, tone ToneProfile, pools, builtin *ContentPools) []string {
	candidates := append(append([]Fragment(nil), pools.Blotter[summary.OutcomeKey]...), pools.Blotter[string(summary.FocusCategory)]...)
	picked := pickUnique(r, weighFragments(candidates, tone), blotterLineCount)
	if len(picked) < blotterLineCount {
		used := map[string]bool{}
		for _, f := range picked {
			used[f.Text] = true
		}
		extra := append(append([]Fragment(nil), builtin.Blotter[summary.OutcomeKey]...), builtin.Blotter[string(summary.FocusCategory)]...)
		picked = append(picked, pickUnique(r, weighFragments(withoutTexts(extra, used), tone), blotterLineCount-len(picked))...)
	}
	for len(picked) < blotterLineCount {
		picked = append(picked, Fragment{Text: fallbackBlotter})
	}

	lines := make([]string, 0, blotterLineCount)
	for i, f := range picked {
		ctx := make(map[string]string, len(summary.Context)+1)
		for k, v := range summary.Context {
			ctx[k] = v
		}
		if len(summary.Districts) > 0 {
			ctx["district"] = summary.Districts[i%len(summary.Districts)]
		}
		lines = append(lines, fillTemplate(f.Text, ctx))
	}
	return lines
}
