package main

import (
	"time"

	"go.uber.org/zap"
)

const sirenGain = 0.7

func cueVolume(s Settings, gain float64) float64 {
	return clamp01(s.VolMaster * s.VolSfx * gain)
}

func musicVolume(s Settings) float64 {
	return clamp01(s.VolMaster * s.VolMusic)
}

func playCueLocked(store *Store, name string, gain float64) {
	store.sound.Play(SoundCue{Name: name, Volume: cueVolume(store.Settings, gain), At: time.Now().UTC()})
}

// switchMusicLocked is best effort: a player that refuses the mode only
// costs a log line.
func switchMusicLocked(store *Store, mode string) {
	if err := store.sound.SetMusicMode(mode); err != nil {
		logger.Warn("switch music mode", zap.String("mode", mode), zap.Error(err))
	}
}

func enabledChannels(s Settings) []string {
	var out []string
	for _, ch := range ambientChannels {
		if s.Enabled[ch] {
			out = append(out, ch)
		}
	}
	return out
}

// ambientDelay draws the wait before the next ambient cue, in seconds.
func ambientDelay(r Rand, s Settings) int {
	lo := maxInt(0, s.MinIntervalSec)
	hi := maxInt(lo, s.MaxIntervalSec)
	return randIntInclusive(r, lo, hi)
}

// nextAmbientCue picks an enabled channel uniformly. It reports false when
// every channel is switched off.
func nextAmbientCue(r Rand, s Settings, now time.Time) (SoundCue, bool) {
	ch, ok := pickOne(r, enabledChannels(s))
	if !ok {
		return SoundCue{}, false
	}
	gain := 1.0
	if ch == channelSiren {
		gain = sirenGain
	}
	return SoundCue{Name: ch, Volume: cueVolume(s, gain), At: now}, true
}

func startAmbientLocked(store *Store) {
	stopAmbientLocked(store)
	if store.ambientUnit <= 0 {
		return
	}
	stop := make(chan struct{})
	store.ambientStop = stop
	store.wg.Add(1)
	go runAmbient(store, store.ambientUnit, stop)
}

func stopAmbientLocked(store *Store) {
	if store.ambientStop != nil {
		close(store.ambientStop)
		store.ambientStop = nil
	}
}

// runAmbient plays one ambient cue per random interval while a shift runs.
// With every channel off it stays idle and re-checks each interval.
func runAmbient(store *Store, unit time.Duration, stop <-chan struct{}) {
	defer store.wg.Done()
	for {
		store.mu.Lock()
		delay := time.Duration(maxInt(1, ambientDelay(store.rng, store.Settings))) * unit
		store.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-stop:
			timer.Stop()
			return
		case now := <-timer.C:
			store.mu.Lock()
			select {
			case <-stop:
				store.mu.Unlock()
				return
			default:
			}
			if cue, ok := nextAmbientCue(store.rng, store.Settings, now.UTC()); ok {
				store.sound.Play(cue)
			}
			store.mu.Unlock()
		}
	}
}
