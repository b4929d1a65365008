package playback

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/braheezy/qoapwm/pkg/qoa"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink remembers every duty written to it.
type recordingSink struct {
	mu     sync.Mutex
	max    uint16
	duties []uint16
}

func (s *recordingSink) SetDuty(duty uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duties = append(s.duties, duty)
}

func (s *recordingSink) MaxDuty() uint16 { return s.max }

func (s *recordingSink) Duties() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint16(nil), s.duties...)
}

func (s *recordingSink) Last() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.duties) == 0 {
		return 0
	}
	return s.duties[len(s.duties)-1]
}

// stepClock advances by step on every read and records each wait.
type stepClock struct {
	now   uint64
	step  uint64
	waits []uint64
}

func (c *stepClock) Now() uint64 {
	c.now += c.step
	return c.now
}

func (c *stepClock) Wait(us uint64) {
	c.waits = append(c.waits, us)
	c.now += us
}

// frameSpec is one frame of an asset whose slices are all zero, so every
// sample decodes to 1.
type frameSpec struct {
	sampleRate uint32
	samples    uint16
}

func asset(total uint32, frames ...frameSpec) []byte {
	out := binary.BigEndian.AppendUint32(nil, qoa.QOAMagic)
	out = binary.BigEndian.AppendUint32(out, total)
	for _, f := range frames {
		slices := (int(f.samples) + qoa.QOASliceLen - 1) / qoa.QOASliceLen
		out = append(out, 1, byte(f.sampleRate>>16), byte(f.sampleRate>>8), byte(f.sampleRate))
		out = binary.BigEndian.AppendUint16(out, f.samples)
		out = binary.BigEndian.AppendUint16(out, uint16(qoa.QOAFrameHeaderSize+qoa.QOALMSStateSize+slices*qoa.QOASliceSize))
		out = append(out, make([]byte, qoa.QOALMSStateSize+slices*qoa.QOASliceSize)...)
	}
	return out
}

const (
	// duty of a decoded 1 at full scale
	dutyOne = 32769
	// duty of silence at full scale
	dutySilence = 32768
)

var testTracks = Tracks{
	"music":     asset(20, frameSpec{40000, 20}),
	"ping":      asset(30, frameSpec{8000, 20}, frameSpec{8000, 10}),
	"broken":    []byte("RIFF"),
	"truncated": asset(40, frameSpec{40000, 20}),
	"rate":      asset(30, frameSpec{40000, 20}, frameSpec{44100, 10}),
}

func newTestPlayer(t *testing.T, cfg Config) (*Player, *recordingSink) {
	t.Helper()
	sink := &recordingSink{max: 65535}
	if cfg.Clock == nil {
		cfg.Clock = &ManualClock{}
	}
	return NewPlayer(testTracks, sink, cfg), sink
}

func steps(p *Player, n int) State {
	var s State
	for i := 0; i < n; i++ {
		s = p.Step()
	}
	return s
}

func TestPlayerIdle(t *testing.T) {
	p, sink := newTestPlayer(t, Config{})

	assert.Equal(t, Idle, p.Step())
	assert.Empty(t, sink.Duties())
	assert.Equal(t, Status{State: Idle}, p.Status())
}

func TestPlayerPlays(t *testing.T) {
	clock := &ManualClock{}
	p, sink := newTestPlayer(t, Config{Clock: clock})

	p.Requests().Request("music")
	assert.Equal(t, Playing, p.Step())

	status := p.Status()
	assert.Equal(t, TrackID("music"), status.Track)
	assert.Equal(t, Playing, status.State)
	assert.Equal(t, uint32(40000), status.SampleRate)
	assert.Equal(t, 25*time.Microsecond, status.Period)
	assert.Equal(t, uint32(1), status.SamplesRead)
	assert.Equal(t, uint32(20), status.TotalSamples)

	assert.Equal(t, Playing, steps(p, 19))
	assert.Equal(t, uint64(20*25), clock.Now(), "one period per sample")
	assert.Equal(t, 1.0, p.Status().Progress())

	duties := sink.Duties()
	require.Len(t, duties, 20)
	for _, d := range duties {
		assert.Equal(t, uint16(dutyOne), d)
	}
}

func TestPlayerStopsOnEOF(t *testing.T) {
	p, sink := newTestPlayer(t, Config{})

	p.Requests().Request("ping")
	assert.Equal(t, Playing, steps(p, 30))
	assert.Equal(t, Idle, p.Step())
	assert.Equal(t, Status{State: Idle}, p.Status())
	assert.Equal(t, uint16(dutySilence), sink.Last(), "output parks at silence")

	// The same track plays again from the start once requested.
	p.Requests().Request("ping")
	assert.Equal(t, Playing, p.Step())
	assert.Equal(t, uint32(1), p.Status().SamplesRead)
}

func TestPlayerLoopsOnEOF(t *testing.T) {
	p, sink := newTestPlayer(t, Config{OnEOF: LoopOnEOF})

	p.Requests().Request("music")
	steps(p, 20)
	assert.Equal(t, Playing, p.Step(), "end of track rewinds")

	status := p.Status()
	assert.Equal(t, uint64(1), status.Loops)
	assert.Equal(t, uint32(0), status.SamplesRead)

	assert.Equal(t, Playing, p.Step())
	assert.Equal(t, uint32(1), p.Status().SamplesRead)
	assert.Len(t, sink.Duties(), 21)
}

func TestPlayerSameRequestIsNoop(t *testing.T) {
	p, _ := newTestPlayer(t, Config{})

	p.Requests().Request("ping")
	steps(p, 5)
	p.Requests().Request("ping")
	p.Step()

	assert.Equal(t, uint32(6), p.Status().SamplesRead)
}

func TestPlayerSwitchesTrack(t *testing.T) {
	p, _ := newTestPlayer(t, Config{})

	p.Requests().Request("music")
	steps(p, 5)
	p.Requests().Request("ping")
	assert.Equal(t, Playing, p.Step())

	status := p.Status()
	assert.Equal(t, TrackID("ping"), status.Track)
	assert.Equal(t, uint32(8000), status.SampleRate)
	assert.Equal(t, 125*time.Microsecond, status.Period)
	assert.Equal(t, uint32(1), status.SamplesRead)
}

func TestPlayerStopRequest(t *testing.T) {
	p, sink := newTestPlayer(t, Config{})

	p.Requests().Request("music")
	steps(p, 3)
	p.Requests().Stop()
	assert.Equal(t, Idle, p.Step())
	assert.Equal(t, uint16(dutySilence), sink.Last())
	assert.Len(t, sink.Duties(), 4)
}

func TestPlayerBadRequests(t *testing.T) {
	testCases := []struct {
		desc  string
		track TrackID
	}{
		{desc: "Unknown track", track: "missing"},
		{desc: "Malformed asset", track: "broken"},
		{desc: "Silence", track: Silence},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			p, sink := newTestPlayer(t, Config{})

			p.Requests().Request(tc.track)
			assert.Equal(t, Idle, p.Step())
			assert.Empty(t, sink.Duties())
		})
	}
}

func TestPlayerUnsupportedStopsEvenWhenLooping(t *testing.T) {
	p, _ := newTestPlayer(t, Config{OnEOF: LoopOnEOF})

	p.Requests().Request("rate")
	assert.Equal(t, Playing, steps(p, 20))
	assert.Equal(t, Idle, p.Step())
	assert.Equal(t, uint64(0), p.Status().Loops)
}

func TestPlayerTruncatedTrackEnds(t *testing.T) {
	p, _ := newTestPlayer(t, Config{})
	p.Requests().Request("truncated")
	steps(p, 20)
	assert.Equal(t, Idle, p.Step())

	looping, _ := newTestPlayer(t, Config{OnEOF: LoopOnEOF})
	looping.Requests().Request("truncated")
	steps(looping, 20)
	assert.Equal(t, Playing, looping.Step())
	assert.Equal(t, uint64(1), looping.Status().Loops)
}

func TestPlayerEmptyTrackDoesNotLoop(t *testing.T) {
	testCases := []struct {
		desc  string
		asset []byte
	}{
		{desc: "No samples declared", asset: asset(0, frameSpec{8000, 0})},
		{desc: "Empty first frame", asset: asset(40, frameSpec{8000, 0})},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			sink := &recordingSink{max: 65535}
			clock := &ManualClock{}
			p := NewPlayer(Tracks{"empty": tc.asset}, sink, Config{Clock: clock, OnEOF: LoopOnEOF})

			p.Requests().Request("empty")
			assert.Equal(t, Idle, p.Step())
			assert.Equal(t, Idle, steps(p, 1000))

			assert.Equal(t, uint64(0), p.Status().Loops)
			assert.Equal(t, []uint16{dutySilence}, sink.Duties())
		})
	}
}

func TestPlayerDisabled(t *testing.T) {
	enabled := NewSwitch(false)
	p, sink := newTestPlayer(t, Config{Enabled: enabled})

	p.Requests().Request("music")
	assert.Equal(t, Idle, p.Step())

	// The request was consumed while disabled.
	enabled.Enable()
	assert.Equal(t, Idle, p.Step())

	p.Requests().Request("music")
	assert.Equal(t, Playing, steps(p, 3))

	enabled.Disable()
	assert.Equal(t, Idle, p.Step())
	assert.Len(t, sink.Duties(), 4)
	assert.Equal(t, uint16(dutySilence), sink.Last())
}

func TestPlayerPacing(t *testing.T) {
	clock := &stepClock{step: 10}
	p, _ := newTestPlayer(t, Config{Clock: clock})

	p.Requests().Request("music")
	steps(p, 3)

	assert.Equal(t, []uint64{15, 15, 15}, clock.waits)
	assert.Equal(t, uint64(0), p.Status().Overruns)
}

func TestPlayerOverrunDoesNotWaitNegative(t *testing.T) {
	clock := &stepClock{step: 100}
	p, sink := newTestPlayer(t, Config{Clock: clock})

	p.Requests().Request("music")
	steps(p, 4)

	assert.Equal(t, []uint64{0, 0, 0, 0}, clock.waits)
	assert.Equal(t, uint64(4), p.Status().Overruns)
	assert.Len(t, sink.Duties(), 4, "overruns still emit every sample")
}

func TestPlayerLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf)
	logger.SetLevel(log.DebugLevel)

	p, _ := newTestPlayer(t, Config{Logger: logger, StatsInterval: 10})
	p.Requests().Request("music")
	steps(p, 21)

	out := buf.String()
	assert.Contains(t, out, "Playing audio")
	assert.Contains(t, out, "Audio timing")
	assert.Contains(t, out, "End of track")
}

func TestPlayerStepDoesNotAllocate(t *testing.T) {
	p, _ := newTestPlayer(t, Config{})
	p.Requests().Request("ping")
	p.Step()

	// Stay inside the track and clear of the stats report, which format their fields.
	allocs := testing.AllocsPerRun(20, func() {
		p.Step()
	})
	assert.Zero(t, allocs)
}

func TestPlayerRun(t *testing.T) {
	p, sink := newTestPlayer(t, Config{OnEOF: LoopOnEOF, IdlePoll: time.Microsecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()

	p.Requests().Request("music")
	require.Eventually(t, func() bool {
		return p.Status().Loops > 0
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, Idle, p.State())
	assert.Equal(t, uint16(dutySilence), sink.Last())
}
