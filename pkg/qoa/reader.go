package qoa

import (
	"errors"
	"io"
)

// Reader is an io.Reader producing 16 bit little endian PCM from a Decoder.
type Reader struct {
	dec *Decoder
	pos int

	// high byte of a sample split across two reads
	pending    byte
	hasPending bool
}

// NewReader creates a new Reader pulling samples from dec.
func NewReader(dec *Decoder) *Reader {
	return &Reader{
		dec: dec,
		pos: 0,
	}
}

// Read implements the io.Reader interface.
func (r *Reader) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if r.hasPending {
		p[0] = r.pending
		r.hasPending = false
		n = 1
	}

	for n < len(p) {
		sample, err := r.dec.NextSample()
		if err != nil {
			if errors.Is(err, io.EOF) && n > 0 {
				return n, nil
			}
			return n, err
		}
		r.pos++

		p[n] = byte(sample & 0xFF)
		if n+1 == len(p) {
			r.pending = byte(sample >> 8)
			r.hasPending = true
			return n + 1, nil
		}
		p[n+1] = byte(sample >> 8)
		n += 2
	}

	return n, nil
}

// SamplesPlayed returns the number of samples that have been read
func (r *Reader) SamplesPlayed() int {
	return r.pos
}
