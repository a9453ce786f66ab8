package saga

import "fmt"

// State is a step of the song creation saga
type State string

const (
	StateStart         State = "START"
	StateAudioSaved    State = "AUDIO_SAVED"
	StateImageSaved    State = "IMAGE_SAVED"
	StateAlbumResolved State = "ALBUM_RESOLVED"
	StateSongInserted  State = "SONG_INSERTED"
	StateCommitted     State = "COMMITTED"
	StateAborted       State = "ABORTED"
)

// An image is only saved while creating a new album, so IMAGE_SAVED sits
// between AUDIO_SAVED and ALBUM_RESOLVED and may be skipped.
var transitions = map[State][]State{
	StateStart:         {StateAudioSaved},
	StateAudioSaved:    {StateImageSaved, StateAlbumResolved},
	StateImageSaved:    {StateAlbumResolved},
	StateAlbumResolved: {StateSongInserted},
	StateSongInserted:  {StateCommitted},
}

// IsTerminal reports whether no further transition is possible
func (s State) IsTerminal() bool {
	return s == StateCommitted || s == StateAborted
}

// Tracker follows a saga through its states and keeps the path taken
type Tracker struct {
	current State
	history []State
}

// NewTracker starts a tracker in START
func NewTracker() *Tracker {
	return &Tracker{current: StateStart, history: []State{StateStart}}
}

// Current returns the state reached so far
func (t *Tracker) Current() State {
	return t.current
}

// History returns every state visited, in order
func (t *Tracker) History() []State {
	out := make([]State, len(t.history))
	copy(out, t.history)
	return out
}

// Advance moves to the next state. Any non-terminal state may abort.
func (t *Tracker) Advance(next State) error {
	if t.current.IsTerminal() {
		return fmt.Errorf("saga already finished in state %s", t.current)
	}
	if next != StateAborted && !allowed(t.current, next) {
		return fmt.Errorf("invalid saga transition %s -> %s", t.current, next)
	}
	t.current = next
	t.history = append(t.history, next)
	return nil
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
