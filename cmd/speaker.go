package cmd

import (
	"time"

	"github.com/braheezy/qoapwm/pkg/playback"
	"github.com/ebitengine/oto/v3"
)

const (
	// levelBuffer is how many duty levels may queue up between the pacing loop
	// and the audio device.
	levelBuffer = 4096
	// underrunWait is how long a device read waits for the first level before
	// holding the last one.
	underrunWait = 20 * time.Millisecond
)

// levelStream turns duty levels into the analog signal a low-pass filtered
// PWM pin would produce: 16 bit mono PCM, one sample per level. When the
// pacing loop falls behind, the pin holds its last level.
type levelStream struct {
	maxDuty uint16
	levels  chan uint16
	last    int16

	dropped uint64
}

func newLevelStream(maxDuty uint16) *levelStream {
	return &levelStream{
		maxDuty: maxDuty,
		levels:  make(chan uint16, levelBuffer),
		last:    playback.DutyToSample(playback.SampleToDuty(0, maxDuty), maxDuty),
	}
}

// SetDuty never blocks; a level that does not fit is dropped.
func (s *levelStream) SetDuty(duty uint16) {
	select {
	case s.levels <- duty:
	default:
		s.dropped++
	}
}

func (s *levelStream) MaxDuty() uint16 {
	return s.maxDuty
}

// Read waits briefly for one level, then returns whatever else is queued.
func (s *levelStream) Read(p []byte) (int, error) {
	if len(p) < 2 {
		return 0, nil
	}

	timer := time.NewTimer(underrunWait)
	defer timer.Stop()
	select {
	case duty := <-s.levels:
		s.put(p, duty)
	case <-timer.C:
		// Underrun: hold the pin where it is for the whole buffer.
		for i := 0; i+1 < len(p); i += 2 {
			p[i] = byte(s.last)
			p[i+1] = byte(s.last >> 8)
		}
		return len(p) &^ 1, nil
	}

	n := 2
	for n+1 < len(p) {
		select {
		case duty := <-s.levels:
			s.put(p[n:], duty)
			n += 2
		default:
			return n, nil
		}
	}
	return n, nil
}

func (s *levelStream) put(p []byte, duty uint16) {
	s.last = playback.DutyToSample(duty, s.maxDuty)
	p[0] = byte(s.last)
	p[1] = byte(s.last >> 8)
}

// speaker is a playback.DutySink played on the host audio device.
type speaker struct {
	*levelStream
	player *oto.Player
}

// newSpeaker opens the audio device at rate. There can only be one oto
// context per process.
func newSpeaker(rate int, maxDuty uint16) (*speaker, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   50 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	// Wait for the context to be ready
	<-ready

	stream := newLevelStream(maxDuty)
	player := ctx.NewPlayer(stream)
	player.Play()

	return &speaker{levelStream: stream, player: player}, nil
}

func (s *speaker) Close() error {
	if s.dropped > 0 {
		logger.Debug("Speaker dropped levels", "count", s.dropped)
	}
	return s.player.Close()
}
