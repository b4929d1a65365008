package qoa

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	// ErrInvalidFormat is returned when the data is not a QOA file.
	ErrInvalidFormat = errors.New("qoa: invalid format")
	// ErrUnexpectedEOF is returned when the data ends before a header, LMS
	// state or slice is complete.
	ErrUnexpectedEOF = errors.New("qoa: unexpected end of data")
	// ErrUnsupportedFormat is returned for valid QOA files this decoder does not
	// handle: more than one channel, or a sample rate that changes between frames.
	ErrUnsupportedFormat = errors.New("qoa: unsupported format")
)

// Decoder decodes a mono QOA file one sample at a time.
//
// The encoded data is borrowed, not copied, and must not be modified while the
// Decoder is in use. After construction a Decoder never allocates: the current
// slice and the LMS state live inline.
type Decoder struct {
	data []byte
	// pos is the offset of the next unread byte in data.
	pos int

	totalSamples uint32
	samplesRead  uint32
	sampleRate   uint32
	frames       uint32

	frameSamplesRemaining uint32
	slicesInFrame         uint32
	sliceIndex            uint32

	slice    [QOASliceLen]int16
	sliceLen int
	sliceAt  int

	lms LMS
	err error
}

// NewDecoder parses the file header and the first frame header of data.
func NewDecoder(data []byte) (*Decoder, error) {
	d := &Decoder{}
	if err := d.init(data); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Decoder) init(data []byte) error {
	*d = Decoder{data: data}

	if len(data) < QOAFileHeaderSize {
		return ErrUnexpectedEOF
	}
	// Read the file header, verify the magic number ('qoaf') and read the total number of samples.
	fileHeader := binary.BigEndian.Uint64(data)
	if (fileHeader >> 32) != QOAMagic {
		return ErrInvalidFormat
	}
	d.totalSamples = uint32(fileHeader & 0xffffffff)
	d.pos = QOAFileHeaderSize

	if err := d.loadFrame(); err != nil {
		return err
	}
	if d.sampleRate == 0 {
		return ErrInvalidFormat
	}
	return nil
}

// Reset rewinds the decoder to the first sample, as if it had just been
// created from the same data.
func (d *Decoder) Reset() error {
	return d.init(d.data)
}

// SampleRate returns the sample rate declared by the first frame.
func (d *Decoder) SampleRate() uint32 {
	return d.sampleRate
}

// TotalSamples returns the number of samples declared in the file header.
func (d *Decoder) TotalSamples() uint32 {
	return d.totalSamples
}

// SamplesRead returns the number of samples returned by NextSample so far.
func (d *Decoder) SamplesRead() uint32 {
	return d.samplesRead
}

// FramesRead returns the number of frame headers parsed so far, including
// the first one read by NewDecoder.
func (d *Decoder) FramesRead() uint32 {
	return d.frames
}

// NextSample returns the next decoded sample. It returns io.EOF once every
// sample declared in the file header has been returned. Any other error is
// sticky and is returned by every later call until Reset.
func (d *Decoder) NextSample() (int16, error) {
	if d.err != nil {
		return 0, d.err
	}
	if d.samplesRead >= d.totalSamples {
		return 0, io.EOF
	}

	for d.sliceAt >= d.sliceLen {
		if d.sliceIndex < d.slicesInFrame {
			if err := d.decodeSlice(); err != nil {
				d.err = err
				return 0, err
			}
			continue
		}
		if err := d.loadFrame(); err != nil {
			d.err = err
			return 0, err
		}
	}

	sample := d.slice[d.sliceAt]
	d.sliceAt++
	d.samplesRead++
	return sample, nil
}

// loadFrame reads a frame header and its LMS state, leaving the slice buffer empty.
func (d *Decoder) loadFrame() error {
	if len(d.data)-d.pos < QOAFrameHeaderSize {
		return ErrUnexpectedEOF
	}
	frameHeader := binary.BigEndian.Uint64(d.data[d.pos:])
	channels := uint32((frameHeader >> 56) & 0x000000FF)
	sampleRate := uint32((frameHeader >> 32) & 0x00FFFFFF)
	samples := uint32((frameHeader >> 16) & 0x0000FFFF)
	// The frame size in the low 16 bits is informational only.

	if channels != 1 {
		return ErrUnsupportedFormat
	}
	if d.sampleRate == 0 {
		d.sampleRate = sampleRate
	} else if sampleRate != d.sampleRate {
		return ErrUnsupportedFormat
	}
	d.pos += QOAFrameHeaderSize

	if len(d.data)-d.pos < QOALMSStateSize {
		return ErrUnexpectedEOF
	}
	d.lms = DecodeLMS([QOALMSStateSize]byte(d.data[d.pos : d.pos+QOALMSStateSize]))
	d.pos += QOALMSStateSize
	d.frames++

	d.frameSamplesRemaining = samples
	d.slicesInFrame = (samples + QOASliceLen - 1) / QOASliceLen
	d.sliceIndex = 0
	d.sliceLen = 0
	d.sliceAt = 0
	return nil
}

// decodeSlice reconstructs the next slice of the current frame into the slice buffer.
func (d *Decoder) decodeSlice() error {
	if len(d.data)-d.pos < QOASliceSize {
		return ErrUnexpectedEOF
	}
	slice := binary.BigEndian.Uint64(d.data[d.pos:])
	d.pos += QOASliceSize
	d.sliceIndex++

	scaleFactor := (slice >> 60) & 0x0F
	// All 20 residuals go through the filter, even the zeroed padding of a
	// final partial slice; only the valid ones are handed out.
	for i := 0; i < QOASliceLen; i++ {
		quantized := (slice >> 57) & 0x07
		dequantized := qoaDequantTable[scaleFactor][quantized]
		reconstructed := clampS16(d.lms.Predict() + dequantized)

		d.slice[i] = reconstructed
		slice <<= 3

		d.lms.Update(reconstructed, dequantized)
	}

	n := uint32(QOASliceLen)
	if d.frameSamplesRemaining < n {
		n = d.frameSamplesRemaining
	}
	d.frameSamplesRemaining -= n
	d.sliceLen = int(n)
	d.sliceAt = 0
	return nil
}
