// Package playback paces decoded QOA samples out to a PWM output in real time.
//
// A Player runs on its own goroutine. The UI side talks to it through a Slot
// (which track to play) and a Switch (whether audio is enabled); everything
// else the Player owns.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/braheezy/qoapwm/pkg/qoa"
	"github.com/charmbracelet/log"
)

// State is the state of the playback loop.
type State int32

const (
	// Idle has no track loaded and waits for a request.
	Idle State = iota
	// Playing emits one sample per sample period.
	Playing
	// Draining has reached the end of the track and is applying the EOFPolicy.
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Draining:
		return "draining"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// EOFPolicy decides what happens when a track runs out of samples.
type EOFPolicy int

const (
	// StopOnEOF unloads the track. Requesting it again plays it from the start.
	StopOnEOF EOFPolicy = iota
	// LoopOnEOF rewinds the track and keeps playing.
	LoopOnEOF
)

// ParseEOFPolicy parses "stop" or "loop".
func ParseEOFPolicy(s string) (EOFPolicy, error) {
	switch s {
	case "stop", "":
		return StopOnEOF, nil
	case "loop":
		return LoopOnEOF, nil
	}
	return StopOnEOF, fmt.Errorf("unknown eof policy %q, want stop or loop", s)
}

func (p EOFPolicy) String() string {
	if p == LoopOnEOF {
		return "loop"
	}
	return "stop"
}

const (
	defaultStatsInterval = 20_000
	defaultIdlePoll      = time.Millisecond
)

// Config configures a Player. Nil and zero fields get defaults.
type Config struct {
	// Requests carries play requests from the UI. Default: a new Slot.
	Requests *Slot
	// Enabled gates playback. Default: a new, enabled Switch.
	Enabled *Switch
	// Clock paces samples. Default: a SystemClock.
	Clock Clock
	// Logger receives playback events. Default: discard.
	Logger *log.Logger
	// OnEOF is applied when a track ends. Default: StopOnEOF.
	OnEOF EOFPolicy
	// StatsInterval is the number of samples between timing reports at debug level.
	StatsInterval uint32
	// IdlePoll is how long Run waits between polls of an empty Slot.
	IdlePoll time.Duration
}

// Player decodes the requested track and writes one duty value per sample
// period to a DutySink.
type Player struct {
	lib      Library
	sink     DutySink
	clock    Clock
	requests *Slot
	enabled  *Switch
	logger   *log.Logger

	onEOF         EOFPolicy
	statsInterval uint32
	idlePoll      time.Duration

	// Owned by the goroutine calling Step.
	dec        *qoa.Decoder
	loaded     TrackID
	period     uint64
	sinceStats uint32

	// Published for Status.
	state        atomic.Int32
	track        atomic.Pointer[TrackID]
	sampleRate   atomic.Uint32
	periodUS     atomic.Uint64
	samplesRead  atomic.Uint32
	totalSamples atomic.Uint32
	overruns     atomic.Uint64
	loops        atomic.Uint64
}

// NewPlayer creates an idle Player playing tracks from lib on sink.
func NewPlayer(lib Library, sink DutySink, cfg Config) *Player {
	p := &Player{
		lib:           lib,
		sink:          sink,
		clock:         cfg.Clock,
		requests:      cfg.Requests,
		enabled:       cfg.Enabled,
		logger:        cfg.Logger,
		onEOF:         cfg.OnEOF,
		statsInterval: cfg.StatsInterval,
		idlePoll:      cfg.IdlePoll,
	}
	if p.clock == nil {
		p.clock = NewSystemClock()
	}
	if p.requests == nil {
		p.requests = &Slot{}
	}
	if p.enabled == nil {
		p.enabled = NewSwitch(true)
	}
	if p.logger == nil {
		p.logger = log.New(io.Discard)
	}
	if p.statsInterval == 0 {
		p.statsInterval = defaultStatsInterval
	}
	if p.idlePoll <= 0 {
		p.idlePoll = defaultIdlePoll
	}
	return p
}

// Requests returns the Slot the Player takes requests from.
func (p *Player) Requests() *Slot {
	return p.requests
}

// Enabled returns the Switch gating the Player.
func (p *Player) Enabled() *Switch {
	return p.enabled
}

// Run steps the Player until ctx is done, polling for requests every IdlePoll
// while idle. Track changes and disabling take effect between samples.
func (p *Player) Run(ctx context.Context) error {
	timer := time.NewTimer(p.idlePoll)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			p.unload()
			return err
		}
		if p.Step() != Idle {
			continue
		}
		timer.Reset(p.idlePoll)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

// Step handles a pending request, then emits at most one sample and waits out
// the rest of its period. It returns the resulting state.
func (p *Player) Step() State {
	if id, ok := p.requests.Take(); ok {
		if p.enabled.Enabled() {
			p.load(id)
		} else {
			p.logger.Debug("Audio disabled, dropping request", "track", id)
		}
	}
	if p.dec != nil && !p.enabled.Enabled() {
		p.logger.Info("Audio disabled", "track", p.loaded)
		p.unload()
	}
	if p.dec == nil {
		return Idle
	}

	p.tick()
	return p.State()
}

func (p *Player) load(id TrackID) {
	if p.dec != nil && id == p.loaded {
		return
	}

	data, ok := p.lib.Asset(id)
	if !ok {
		if id != Silence {
			p.logger.Warn("Unknown track", "track", id)
		}
		if p.dec != nil {
			p.logger.Info("Stopping audio", "track", p.loaded)
		}
		p.unload()
		return
	}

	dec, err := qoa.NewDecoder(data)
	if err != nil {
		p.logger.Error("Cannot play track", "track", id, "err", err)
		p.unload()
		return
	}

	p.dec = dec
	p.loaded = id
	p.period = 1_000_000 / uint64(dec.SampleRate())
	p.sinceStats = 0

	p.track.Store(&id)
	p.sampleRate.Store(dec.SampleRate())
	p.periodUS.Store(p.period)
	p.totalSamples.Store(dec.TotalSamples())
	p.samplesRead.Store(0)
	p.state.Store(int32(Playing))

	p.logger.Info(
		"Playing audio",
		"track", id,
		"sample rate", dec.SampleRate(),
		"sample period", fmt.Sprintf("%dµs", p.period),
	)
}

func (p *Player) unload() {
	if p.dec != nil {
		p.sink.SetDuty(SampleToDuty(0, p.sink.MaxDuty()))
	}
	p.dec = nil
	p.loaded = Silence
	p.period = 0

	p.track.Store(nil)
	p.sampleRate.Store(0)
	p.periodUS.Store(0)
	p.totalSamples.Store(0)
	p.samplesRead.Store(0)
	p.state.Store(int32(Idle))
}

func (p *Player) tick() {
	start := p.clock.Now()

	sample, err := p.dec.NextSample()
	if err != nil {
		p.endOfTrack(err)
		return
	}
	p.sink.SetDuty(SampleToDuty(sample, p.sink.MaxDuty()))
	p.samplesRead.Store(p.dec.SamplesRead())

	elapsed := p.clock.Now() - start
	wait := RemainingWait(p.period, elapsed)
	if elapsed > p.period {
		p.overruns.Add(1)
	}

	p.sinceStats++
	if p.sinceStats >= p.statsInterval {
		p.sinceStats = 0
		p.logger.Debug(
			"Audio timing",
			"samples", p.dec.SamplesRead(),
			"sample period", fmt.Sprintf("%dµs", p.period),
			"decoding time", fmt.Sprintf("%dµs", elapsed),
			"sleep", fmt.Sprintf("%dµs", wait),
		)
	}

	p.clock.Wait(wait)
}

func (p *Player) endOfTrack(err error) {
	p.state.Store(int32(Draining))

	switch {
	case errors.Is(err, io.EOF):
		p.logger.Info("End of track", "track", p.loaded, "policy", p.onEOF)
	case errors.Is(err, qoa.ErrUnexpectedEOF):
		p.logger.Warn(
			"Track is truncated",
			"track", p.loaded,
			"samples", p.dec.SamplesRead(),
			"declared", p.dec.TotalSamples(),
		)
	default:
		p.logger.Error("Cannot continue track", "track", p.loaded, "err", err)
		p.unload()
		return
	}

	if p.onEOF == LoopOnEOF {
		if p.dec.SamplesRead() == 0 {
			p.logger.Warn("Track has no samples, not looping", "track", p.loaded)
			p.unload()
			return
		}
		if err := p.dec.Reset(); err != nil {
			p.logger.Error("Cannot rewind track", "track", p.loaded, "err", err)
			p.unload()
			return
		}
		p.loops.Add(1)
		p.samplesRead.Store(0)
		p.state.Store(int32(Playing))
		return
	}
	p.unload()
}

// State returns the current state. It is safe to call from any goroutine.
func (p *Player) State() State {
	return State(p.state.Load())
}

// Status is a snapshot of the Player.
type Status struct {
	Track        TrackID
	State        State
	SampleRate   uint32
	Period       time.Duration
	SamplesRead  uint32
	TotalSamples uint32
	// Overruns counts samples whose decoding took longer than a period.
	Overruns uint64
	// Loops counts rewinds under LoopOnEOF.
	Loops uint64
}

// Progress returns the fraction of the track played, between 0 and 1.
func (s Status) Progress() float64 {
	if s.TotalSamples == 0 {
		return 0
	}
	return float64(s.SamplesRead) / float64(s.TotalSamples)
}

// Status returns a snapshot of the Player. It is safe to call from any
// goroutine; fields are read individually, so a snapshot taken during a track
// change may mix the two tracks.
func (p *Player) Status() Status {
	s := Status{
		State:        p.State(),
		SampleRate:   p.sampleRate.Load(),
		Period:       time.Duration(p.periodUS.Load()) * time.Microsecond,
		SamplesRead:  p.samplesRead.Load(),
		TotalSamples: p.totalSamples.Load(),
		Overruns:     p.overruns.Load(),
		Loops:        p.loops.Load(),
	}
	if id := p.track.Load(); id != nil {
		s.Track = *id
	}
	return s
}
