package main

import (
	"sync"
	"time"
)

const (
	maxQueuedNotifications = 50
	maxQueuedCues          = 20

	musicMain   = "main"
	musicCrisis = "crisis"
	musicOff    = "off"

	soundDispatch     = "dispatch"
	soundCrisis       = "crisis"
	soundCommendation = "commendation"
)

// Notification is a player-facing alert. Modal ones ask the UI to open a dialog.
type Notification struct {
	Kind     string    `json:"kind"`
	Title    string    `json:"title"`
	Text     string    `json:"text"`
	Category Category  `json:"category,omitempty"`
	Modal    bool      `json:"modal,omitempty"`
	At       time.Time `json:"at"`
}

// SoundCue names a one-shot sound and the effective volume to play it at.
type SoundCue struct {
	Name   string    `json:"name"`
	Volume float64   `json:"volume"`
	At     time.Time `json:"at"`
}

type Notifier interface {
	Notify(n Notification)
}

type SoundPlayer interface {
	Play(cue SoundCue)
	SetMusicMode(mode string) error
}

type Renderer interface {
	Refresh(stats *SessionStats)
}

// eventQueue is the serve-mode collaborator: it buffers notifications and
// cues until the client polls GET /session. It has its own lock because it is
// called while store.mu is held.
type eventQueue struct {
	mu            sync.Mutex
	notifications []Notification
	cues          []SoundCue
	musicMode     string
	revision      int64
}

func newEventQueue() *eventQueue {
	return &eventQueue{musicMode: musicOff}
}

func (q *eventQueue) Notify(n Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.notifications = append(q.notifications, n)
	if len(q.notifications) > maxQueuedNotifications {
		q.notifications = q.notifications[len(q.notifications)-maxQueuedNotifications:]
	}
}

func (q *eventQueue) Play(cue SoundCue) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cues = append(q.cues, cue)
	if len(q.cues) > maxQueuedCues {
		q.cues = q.cues[len(q.cues)-maxQueuedCues:]
	}
}

func (q *eventQueue) SetMusicMode(mode string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.musicMode = mode
	return nil
}

func (q *eventQueue) Refresh(*SessionStats) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.revision++
}

type queueSnapshot struct {
	Notifications []Notification `json:"notifications"`
	Cues          []SoundCue     `json:"cues"`
	MusicMode     string         `json:"musicMode"`
	Revision      int64          `json:"revision"`
}

// drain returns everything buffered since the previous poll.
func (q *eventQueue) drain() queueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := queueSnapshot{
		Notifications: q.notifications,
		Cues:          q.cues,
		MusicMode:     q.musicMode,
		Revision:      q.revision,
	}
	if out.Notifications == nil {
		out.Notifications = []Notification{}
	}
	if out.Cues == nil {
		out.Cues = []SoundCue{}
	}
	q.notifications = nil
	q.cues = nil
	return out
}
