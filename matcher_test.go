package main

import (
	mathrand "math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainInput() matchInput {
	return matchInput{Summary: ReportSummary{
		FocusCategory:     categoryInvestigation,
		SecondaryCategory: categoryArrest,
		BestCategory:      categoryInvestigation,
		WorstCategory:     categoryEmergency,
		IntensityBand:     intensitySteady,
		PerformanceBand:   bandMixed,
	}}
}

func TestContentWeight(t *testing.T) {
	in := plainInput()
	assert.InDelta(t, 1.0, contentWeight(nil, in), 1e-9)
	assert.InDelta(t, 1+weightFocusPrimary+weightBest, contentWeight([]string{"Investigation"}, in), 1e-9)
	assert.InDelta(t, 1+weightFocusSecondary, contentWeight([]string{"arrest"}, in), 1e-9)
	assert.InDelta(t, 1+weightWorst, contentWeight([]string{"emergency"}, in), 1e-9)

	chaos := plainInput()
	chaos.Summary.IntensityBand = intensityChaos
	chaos.Summary.PerformanceBand = bandDire
	assert.InDelta(t, 1+weightIntensityNudge+weightPerformanceNudge, contentWeight([]string{"sirens", "bail"}, chaos), 1e-9)

	calm := plainInput()
	calm.Summary.IntensityBand = intensityCalm
	calm.Summary.PerformanceBand = bandExcellent
	assert.InDelta(t, 1+weightIntensityNudge+weightPerformanceNudge, contentWeight([]string{"community", "victory"}, calm), 1e-9)

	voiced := plainInput()
	voiced.Voice = voiceInternalAffairs
	assert.InDelta(t, 1+weightVoiceNudge, contentWeight([]string{"internalaffairs"}, voiced), 1e-9)

	toned := plainInput()
	toned.Tone = ToneProfile{TagWeights: map[string]float64{"grim": 2}}
	assert.InDelta(t, 1+weightToneFactor*2, contentWeight([]string{"grim"}, toned), 1e-9)
}

func TestContentWeightHookBonus(t *testing.T) {
	in := plainInput()
	in.Hooks = []string{"coffee", "legal", "bail", "medical", "insurance"}
	assert.InDelta(t, 1+hookBonusFirst, contentWeight([]string{"coffee"}, in), 1e-9)
	assert.InDelta(t, 1+hookBonusFirst+hookBonusEach, contentWeight([]string{"coffee", "legal"}, in), 1e-9)
	assert.InDelta(t, 1+hookBonusCap, contentWeight(in.Hooks, in), 1e-9)
}

func TestSelectAdsUniqueAndBounded(t *testing.T) {
	in := plainInput()
	counts := map[int]int{}
	for seed := int64(1); seed <= 2000; seed++ {
		ads := selectAds(mathrand.New(mathrand.NewSource(seed)), builtinPools().Ads, in)
		require.GreaterOrEqual(t, len(ads), 1)
		require.LessOrEqual(t, len(ads), 2)
		if len(ads) == 2 {
			require.NotEqual(t, ads[0].ID, ads[1].ID)
		}
		counts[len(ads)]++
	}
	assert.Greater(t, counts[1], counts[2], "one ad is slightly more likely than two")
	assert.Positive(t, counts[2])
}

func TestSelectAdsDedupesAndFallsBack(t *testing.T) {
	dup := []Ad{{ID: "diner", Name: "Diner"}, {ID: "diner", Name: "Diner again"}}
	for seed := int64(1); seed <= 30; seed++ {
		ads := selectAds(mathrand.New(mathrand.NewSource(seed)), dup, plainInput())
		require.Len(t, ads, 1)
	}
	assert.Len(t, uniqueAds(dup), 1)

	fallback := selectAds(&scriptedRand{floats: []float64{0}}, nil, plainInput())
	require.Len(t, fallback, 1)
	assert.NotEmpty(t, fallback[0].Name)
}

func TestSelectClassifiedsRange(t *testing.T) {
	for seed := int64(1); seed <= 100; seed++ {
		list := selectClassifieds(mathrand.New(mathrand.NewSource(seed)), builtinPools().Classifieds, plainInput())
		require.GreaterOrEqual(t, len(list), minClassifieds)
		require.LessOrEqual(t, len(list), maxClassifieds)
		seen := map[string]bool{}
		for _, c := range list {
			require.False(t, seen[c.ID], "duplicate classified %s", c.ID)
			seen[c.ID] = true
		}
	}
	dups := []Classified{{Heading: "LOST", Body: "Cat."}, {Heading: "LOST", Body: "Cat."}, {Heading: "FOUND", Body: "Dog."}}
	assert.Len(t, uniqueClassifieds(dups), 2)
}

func TestBuildReportDefaultsToBuiltinPools(t *testing.T) {
	stats := statsWith(map[Category][2]int{categoryArrest: {3, 2}})
	report := buildReport(stats, outcomeLoss, reasonDeckExhausted, nil, mathrand.New(mathrand.NewSource(11)), testNow)

	assert.Equal(t, stats.CaseFile, report.CaseFile)
	assert.Equal(t, outcomeKeyUnsolved, report.Summary.OutcomeKey)
	assert.Equal(t, testNow, report.GeneratedAt)
	assert.NotEmpty(t, report.Article.Headline)
	assert.NotEmpty(t, report.Ads)
	assert.GreaterOrEqual(t, len(report.Classifieds), minClassifieds)
}
