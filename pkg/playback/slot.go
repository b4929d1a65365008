package playback

import (
	"sort"
	"sync/atomic"
)

// TrackID names an audio asset. The empty id is Silence.
type TrackID string

// Silence is the track id that stops playback.
const Silence TrackID = ""

// Library looks up the encoded asset of a track.
type Library interface {
	Asset(id TrackID) ([]byte, bool)
}

// Tracks is a Library backed by memory resident assets.
type Tracks map[TrackID][]byte

// Asset returns the asset stored under id. Silence is never found.
func (t Tracks) Asset(id TrackID) ([]byte, bool) {
	if id == Silence {
		return nil, false
	}
	data, ok := t[id]
	return data, ok
}

// IDs returns the track ids in sorted order.
func (t Tracks) IDs() []TrackID {
	ids := make([]TrackID, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Slot carries play requests from a single writer (the UI) to a single reader
// (the audio loop). A request is consumed by the first Take that sees it; a
// newer request replaces an unread one.
type Slot struct {
	id atomic.Pointer[TrackID]
}

// Request asks the audio loop to play id.
func (s *Slot) Request(id TrackID) {
	s.id.Store(&id)
}

// Stop asks the audio loop to go silent.
func (s *Slot) Stop() {
	s.Request(Silence)
}

// Take removes and returns the pending request, if any.
func (s *Slot) Take() (TrackID, bool) {
	id := s.id.Swap(nil)
	if id == nil {
		return Silence, false
	}
	return *id, true
}

// Pending reports whether a request is waiting to be taken.
func (s *Slot) Pending() bool {
	return s.id.Load() != nil
}

// Switch is the global audio enable flag.
type Switch struct {
	off atomic.Bool
}

// NewSwitch returns a Switch in the given position.
func NewSwitch(enabled bool) *Switch {
	s := &Switch{}
	s.off.Store(!enabled)
	return s
}

// Enable turns audio on.
func (s *Switch) Enable() { s.off.Store(false) }

// Disable turns audio off. A playing track stops at the next step.
func (s *Switch) Disable() { s.off.Store(true) }

// Toggle flips the switch and returns the new position.
func (s *Switch) Toggle() bool {
	for {
		off := s.off.Load()
		if s.off.CompareAndSwap(off, !off) {
			return off
		}
	}
}

// Enabled reports whether requests are honoured. The zero Switch is enabled.
func (s *Switch) Enabled() bool {
	return !s.off.Load()
}
