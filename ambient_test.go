package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestCueVolume(t *testing.T) {
	s := Settings{VolMaster: 0.5, VolSfx: 0.8, VolMusic: 0.4}
	assert.InDelta(t, 0.4, cueVolume(s, 1), 1e-9)
	assert.InDelta(t, 0.28, cueVolume(s, sirenGain), 1e-9)
	assert.InDelta(t, 0.2, musicVolume(s), 1e-9)
	assert.Equal(t, 1.0, cueVolume(Settings{VolMaster: 3, VolSfx: 3}, 1))
}

func TestNextAmbientCue(t *testing.T) {
	s := defaultSettings()
	for ch := range s.Enabled {
		s.Enabled[ch] = false
	}
	_, ok := nextAmbientCue(&scriptedRand{}, s, testNow)
	assert.False(t, ok, "no channel enabled")

	s.Enabled[channelSiren] = true
	cue, ok := nextAmbientCue(&scriptedRand{}, s, testNow)
	require.True(t, ok)
	assert.Equal(t, channelSiren, cue.Name)
	assert.InDelta(t, cueVolume(s, sirenGain), cue.Volume, 1e-9)
	assert.Equal(t, testNow, cue.At)

	s.Enabled[channelCity] = true
	cue, _ = nextAmbientCue(&scriptedRand{ints: []int{0}}, s, testNow)
	assert.Equal(t, channelCity, cue.Name, "channels are drawn in their fixed order")
	assert.InDelta(t, cueVolume(s, 1), cue.Volume, 1e-9)
}

func TestAmbientDelayBounds(t *testing.T) {
	r := newTestStore().rng
	s := defaultSettings()
	for i := 0; i < 500; i++ {
		d := ambientDelay(r, s)
		require.GreaterOrEqual(t, d, s.MinIntervalSec)
		require.LessOrEqual(t, d, s.MaxIntervalSec)
	}
	s.MinIntervalSec, s.MaxIntervalSec = 40, 10
	assert.Equal(t, 40, ambientDelay(r, s))
}

func TestAmbientLoopPlaysEnabledChannels(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newQuietStore()
	s.ambientUnit = time.Millisecond
	s.Settings.MinIntervalSec, s.Settings.MaxIntervalSec = 3, 3
	for ch := range s.Settings.Enabled {
		s.Settings.Enabled[ch] = ch == channelTraffic
	}
	mustStart(t, s, 2)

	var played []SoundCue
	require.Eventually(t, func() bool {
		played = append(played, s.queue.drain().Cues...)
		return len(played) >= 2
	}, 5*time.Second, 5*time.Millisecond)
	for _, cue := range played {
		assert.Equal(t, channelTraffic, cue.Name)
	}
	require.NoError(t, s.Close())
}

func TestAmbientStopsAtEndOfShift(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newQuietStore()
	s.ambientUnit = time.Millisecond
	s.Settings.MinIntervalSec, s.Settings.MaxIntervalSec = 3, 3
	mustStart(t, s, 2)
	s.mu.Lock()
	_, err := endSessionLocked(s, outcomeWin, reasonCasesSolved, testNow)
	stopped := s.ambientStop == nil
	s.mu.Unlock()
	require.NoError(t, err)
	assert.True(t, stopped)
	require.NoError(t, s.Close())
}

func TestCrisisTimerFailsOverdueCrisis(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newQuietStore()
	s.crisisTick = 10 * time.Millisecond
	mustStart(t, s, 3)

	s.mu.Lock()
	c := startCrisisLocked(s, CrisisTemplate{Title: "Bank siege", TimeBudgetSeconds: 60, Penalty: "Lose a district."}, testNow)
	require.NotNil(t, c)
	s.Active.CrisisActive.DeadlineAt = time.Now().Add(-time.Second)
	s.mu.Unlock()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.Active.CrisisActive == nil
	}, 5*time.Second, 10*time.Millisecond)

	s.mu.Lock()
	last := s.Active.Log[0]
	s.mu.Unlock()
	assert.True(t, strings.HasPrefix(last.Text, "Crisis failed: Bank siege."), last.Text)
	assert.Equal(t, musicMain, s.queue.drain().MusicMode)
	require.NoError(t, s.Close())
}
