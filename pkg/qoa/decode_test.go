package qoa

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"

	refqoa "github.com/braheezy/qoa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFrame describes one frame of a hand-assembled QOA file.
type testFrame struct {
	channels   uint8
	sampleRate uint32
	samples    uint16
	lms        [QOALMSStateSize]byte
	slices     []uint64
}

// buildAsset assembles a QOA file from its parts. The frame size field is
// filled in but never read by the decoder.
func buildAsset(totalSamples uint32, frames ...testFrame) []byte {
	out := binary.BigEndian.AppendUint32(nil, QOAMagic)
	out = binary.BigEndian.AppendUint32(out, totalSamples)
	for _, f := range frames {
		size := QOAFrameHeaderSize + QOALMSStateSize + QOASliceSize*len(f.slices)
		out = append(out, f.channels, byte(f.sampleRate>>16), byte(f.sampleRate>>8), byte(f.sampleRate))
		out = binary.BigEndian.AppendUint16(out, f.samples)
		out = binary.BigEndian.AppendUint16(out, uint16(size))
		out = append(out, f.lms[:]...)
		for _, s := range f.slices {
			out = binary.BigEndian.AppendUint64(out, s)
		}
	}
	return out
}

func monoFrame(samples uint16) testFrame {
	return testFrame{
		channels:   1,
		sampleRate: 44100,
		samples:    samples,
		slices:     make([]uint64, (int(samples)+QOASliceLen-1)/QOASliceLen),
	}
}

// One frame, one slice of zeroes: 20 samples.
var validAsset = []byte{
	0x71, 0x6F, 0x61, 0x66, // "qoaf"
	0x00, 0x00, 0x00, 0x14, // total samples = 20
	0x01,             // num_channels = 1
	0x00, 0xAC, 0x44, // samplerate = 44100
	0x00, 0x14, // fsamples = 20
	0x00, 0x20, // fsize = 32
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

func drain(t *testing.T, d *Decoder) []int16 {
	t.Helper()
	var out []int16
	for {
		s, err := d.NextSample()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, s)
	}
}

func constant(v int16, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestNewDecoder(t *testing.T) {
	d, err := NewDecoder(validAsset)
	require.NoError(t, err)
	assert.Equal(t, uint32(44100), d.SampleRate())
	assert.Equal(t, uint32(20), d.TotalSamples())
	assert.Equal(t, uint32(0), d.SamplesRead())
}

func TestNewDecoderErrors(t *testing.T) {
	badMagic := append([]byte{}, validAsset...)
	badMagic[0] = 'x'

	twoChannels := append([]byte{}, validAsset...)
	twoChannels[8] = 2

	zeroRate := buildAsset(20, testFrame{channels: 1, sampleRate: 0, samples: 20, slices: []uint64{0}})

	testCases := []struct {
		desc     string
		bytes    []byte
		expected error
	}{
		{desc: "Empty", bytes: []byte{}, expected: ErrUnexpectedEOF},
		{desc: "Truncated file header", bytes: validAsset[:4], expected: ErrUnexpectedEOF},
		{desc: "Invalid magic number", bytes: badMagic, expected: ErrInvalidFormat},
		{desc: "Missing frame header", bytes: validAsset[:8], expected: ErrUnexpectedEOF},
		{desc: "Truncated frame header", bytes: validAsset[:10], expected: ErrUnexpectedEOF},
		{desc: "Truncated LMS state", bytes: validAsset[:24], expected: ErrUnexpectedEOF},
		{desc: "Two channels", bytes: twoChannels, expected: ErrUnsupportedFormat},
		{desc: "Zero sample rate", bytes: zeroRate, expected: ErrInvalidFormat},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			d, err := NewDecoder(tc.bytes)
			assert.ErrorIs(t, err, tc.expected)
			assert.Nil(t, d)
		})
	}
}

func TestDecodeZeroSlice(t *testing.T) {
	d, err := NewDecoder(validAsset)
	require.NoError(t, err)

	// Code 0 at scale factor 0 dequantizes to 1 and the zero state predicts 0;
	// the weights never move because 1 >> 4 == 0.
	assert.Equal(t, constant(1, 20), drain(t, d))
	assert.Equal(t, uint32(20), d.SamplesRead())

	_, err = d.NextSample()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeSeededSlice(t *testing.T) {
	// History 100, 200, 300, 400; weights 0, 0, -8192, 16384.
	lms := [QOALMSStateSize]byte{
		0x00, 0x64, 0x00, 0xc8, 0x01, 0x2c, 0x01, 0x90,
		0x00, 0x00, 0x00, 0x00, 0xe0, 0x00, 0x40, 0x00,
	}
	// Scale factor 3, codes 0 2 4 6 1 3 5 7 repeating.
	asset := buildAsset(20, testFrame{
		channels:   1,
		sampleRate: 22050,
		samples:    20,
		lms:        lms,
		slices:     []uint64{0x30a62ef0a62ef0a6},
	})

	d, err := NewDecoder(asset)
	require.NoError(t, err)
	assert.Equal(t, uint32(22050), d.SampleRate())

	expected := []int16{
		534, 781, 1233, 2007, 2769, 3448, 3957, 4174, 4417, 4769,
		5334, 6252, 7227, 8183, 9018, 9582, 10146, 10795, 11651, 12888,
	}
	assert.Equal(t, expected, drain(t, d))
}

func TestDecodeMultiFrame(t *testing.T) {
	asset := buildAsset(30, monoFrame(20), monoFrame(10))

	d, err := NewDecoder(asset)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), d.FramesRead())
	assert.Equal(t, constant(1, 30), drain(t, d))
	assert.Equal(t, uint32(2), d.FramesRead())
}

func TestDecodeSampleCount(t *testing.T) {
	testCases := []struct {
		desc   string
		frames []uint16
	}{
		{desc: "Partial final slice", frames: []uint16{25}},
		{desc: "Single sample", frames: []uint16{1}},
		{desc: "Three frames", frames: []uint16{40, 60, 7}},
		{desc: "Empty frame in the middle", frames: []uint16{20, 0, 19}},
		{desc: "Full frame", frames: []uint16{5120, 13}},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			var total uint32
			var frames []testFrame
			for _, n := range tc.frames {
				total += uint32(n)
				frames = append(frames, monoFrame(n))
			}

			d, err := NewDecoder(buildAsset(total, frames...))
			require.NoError(t, err)
			assert.Len(t, drain(t, d), int(total))
			assert.Equal(t, total, d.SamplesRead())
			assert.Equal(t, uint32(len(tc.frames)), d.FramesRead())
		})
	}
}

func TestDecodeHeaderCapsSamples(t *testing.T) {
	// The file header wins when the frames carry more samples than it declares.
	d, err := NewDecoder(buildAsset(15, monoFrame(20)))
	require.NoError(t, err)
	assert.Len(t, drain(t, d), 15)
}

func TestDecodeTruncated(t *testing.T) {
	testCases := []struct {
		desc  string
		bytes []byte
		good  int
	}{
		{desc: "Truncated slice", bytes: validAsset[:36], good: 0},
		{desc: "Missing second frame", bytes: buildAsset(40, monoFrame(20)), good: 20},
		{desc: "Truncated second frame header", bytes: buildAsset(40, monoFrame(20), monoFrame(20))[:44], good: 20},
		{desc: "Truncated second LMS state", bytes: buildAsset(40, monoFrame(20), monoFrame(20))[:60], good: 20},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			d, err := NewDecoder(tc.bytes)
			require.NoError(t, err)

			for i := 0; i < tc.good; i++ {
				_, err := d.NextSample()
				require.NoError(t, err)
			}
			_, err = d.NextSample()
			assert.ErrorIs(t, err, ErrUnexpectedEOF)
			assert.NotErrorIs(t, err, io.EOF)

			// Errors stick until Reset.
			_, err = d.NextSample()
			assert.ErrorIs(t, err, ErrUnexpectedEOF)
		})
	}
}

func TestDecodeUnsupportedLaterFrame(t *testing.T) {
	rateChange := monoFrame(10)
	rateChange.sampleRate = 48000

	stereo := monoFrame(10)
	stereo.channels = 2

	testCases := []struct {
		desc  string
		frame testFrame
	}{
		{desc: "Sample rate change", frame: rateChange},
		{desc: "Two channels", frame: stereo},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			d, err := NewDecoder(buildAsset(30, monoFrame(20), tc.frame))
			require.NoError(t, err)

			for i := 0; i < 20; i++ {
				_, err := d.NextSample()
				require.NoError(t, err)
			}
			_, err = d.NextSample()
			assert.ErrorIs(t, err, ErrUnsupportedFormat)
			assert.Equal(t, uint32(20), d.SamplesRead())
		})
	}
}

func TestDecodeDeterministic(t *testing.T) {
	asset := encodeReference(t, sine(7000, 44100, 440), 44100)

	a, err := NewDecoder(asset)
	require.NoError(t, err)
	b, err := NewDecoder(asset)
	require.NoError(t, err)

	assert.Equal(t, drain(t, a), drain(t, b))
}

func TestReset(t *testing.T) {
	asset := encodeReference(t, sine(6000, 16000, 300), 16000)

	fresh, err := NewDecoder(asset)
	require.NoError(t, err)
	want := drain(t, fresh)

	d, err := NewDecoder(asset)
	require.NoError(t, err)
	for i := 0; i < 5150; i++ {
		_, err := d.NextSample()
		require.NoError(t, err)
	}

	require.NoError(t, d.Reset())
	assert.Equal(t, uint32(0), d.SamplesRead())
	assert.Equal(t, uint32(16000), d.SampleRate())
	assert.Equal(t, want, drain(t, d))
}

func TestResetAfterError(t *testing.T) {
	d, err := NewDecoder(validAsset[:36])
	require.NoError(t, err)

	_, err = d.NextSample()
	require.ErrorIs(t, err, ErrUnexpectedEOF)

	require.NoError(t, d.Reset())
	_, err = d.NextSample()
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestDecodeMatchesReference(t *testing.T) {
	testCases := []struct {
		desc       string
		samples    int
		sampleRate uint32
		freq       float64
	}{
		{desc: "Short", samples: 33, sampleRate: 8000, freq: 440},
		{desc: "Two frames", samples: 5120 + 77, sampleRate: 22050, freq: 1000},
		{desc: "Three frames", samples: 3*5120 - 5, sampleRate: 44100, freq: 5000},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			pcm := sine(tc.samples, tc.sampleRate, tc.freq)
			asset := encodeReference(t, pcm, tc.sampleRate)

			_, want, err := refqoa.Decode(asset)
			require.NoError(t, err)

			d, err := NewDecoder(asset)
			require.NoError(t, err)
			assert.Equal(t, tc.sampleRate, d.SampleRate())
			assert.Equal(t, uint32(tc.samples), d.TotalSamples())
			assert.Equal(t, want, drain(t, d))
		})
	}
}

func TestNextSampleDoesNotAllocate(t *testing.T) {
	asset := encodeReference(t, sine(20000, 44100, 440), 44100)
	d, err := NewDecoder(asset)
	require.NoError(t, err)

	allocs := testing.AllocsPerRun(1000, func() {
		if _, err := d.NextSample(); err != nil {
			t.Fatal(err)
		}
	})
	assert.Zero(t, allocs)
}

func TestReader(t *testing.T) {
	d, err := NewDecoder(buildAsset(25, monoFrame(25)))
	require.NoError(t, err)
	r := NewReader(d)

	buf := make([]byte, 32)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	assert.Equal(t, []byte{0x01, 0x00}, buf[:2])
	assert.Equal(t, 16, r.SamplesPlayed())

	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 18, n)
	assert.Equal(t, 25, r.SamplesPlayed())

	n, err = r.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderAll(t *testing.T) {
	pcm := sine(1000, 8000, 200)
	asset := encodeReference(t, pcm, 8000)
	d, err := NewDecoder(asset)
	require.NoError(t, err)

	raw, err := io.ReadAll(NewReader(d))
	require.NoError(t, err)
	require.Len(t, raw, 2000)

	require.NoError(t, d.Reset())
	want := drain(t, d)
	for i, s := range want {
		assert.Equal(t, s, int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}
}

func TestReaderOddReads(t *testing.T) {
	asset := encodeReference(t, sine(45, 8000, 300), 8000)

	d, err := NewDecoder(asset)
	require.NoError(t, err)
	whole, err := io.ReadAll(NewReader(d))
	require.NoError(t, err)

	require.NoError(t, d.Reset())
	r := NewReader(d)
	var pieces []byte
	buf := make([]byte, 3)
	for {
		n, err := r.Read(buf)
		pieces = append(pieces, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
	}

	assert.Equal(t, whole, pieces)
	assert.Equal(t, 45, r.SamplesPlayed())
}

func sine(n int, sampleRate uint32, freq float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(20000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

// encodeReference encodes mono pcm with the reference encoder.
func encodeReference(t *testing.T, pcm []int16, sampleRate uint32) []byte {
	t.Helper()
	enc := refqoa.NewEncoder(sampleRate, 1, uint32(len(pcm)))
	out, err := enc.Encode(pcm)
	require.NoError(t, err)
	return out
}
