/*
Package qoa provides a streaming, allocation-free decoder for mono audio in the
QOA format.

The following is adapted from the QOA specification:

# Data Format

QOA encodes pulse-code modulated (PCM) audio data with a bit depth of 16 bits.
The compression method employed in QOA is lossy. QOA encodes 20 samples of 16
bit PCM data into slices of 64 bits, resulting in a 5x compression (16 / 3.2).

A QOA file consists of an 8 byte file header, followed by a number of frames.
Each frame contains an 8 byte frame header, the current 16 byte en-/decoder
state per channel and up to 256 slices per channel. Each slice is 8 bytes wide
and encodes 20 samples of audio data.

All values, including the slices, are big endian. The file layout is as follows:

	struct {
		struct {
			char     magic[4];         // magic bytes "qoaf"
			uint32_t samples;          // samples per channel in this file
		} file_header;

		struct {
			struct {
				uint8_t  num_channels; // no. of channels
				uint24_t samplerate;   // samplerate in hz
				uint16_t fsamples;     // samples per channel in this frame
				uint16_t fsize;        // frame size (includes this header)
			} frame_header;

			struct {
				int16_t history[4];    // most recent last
				int16_t weights[4];    // most recent last
			} lms_state[num_channels];

			qoa_slice_t slices[256][num_channels];

		} frames[ceil(samples / (256 * 20))];
	} qoa_file_t;

Each qoa_slice_t contains a quantized scalefactor sf_quant and 20 quantized
residuals qrNN:

	.- QOA_SLICE -- 64 bits, 20 samples --------------------------/  /------------.
	|        Byte[0]         |        Byte[1]         |  Byte[2]  \  \  Byte[7]   |
	| 7  6  5  4  3  2  1  0 | 7  6  5  4  3  2  1  0 | 7  6  5   /  /    2  1  0 |
	|------------+--------+--------+--------+---------+---------+-\  \--+---------|
	|  sf_quant  |  qr00  |  qr01  |  qr02  |  qr03   |  qr04   | /  /  |  qr19   |
	`-------------------------------------------------------------\  \------------`

The last slice in the last frame may contain less than 20 samples; the slice
still must be 8 bytes wide, with the unused samples zeroed out.

This package only handles mono files with a known total number of samples and
a single sample rate. The asset is expected to be fully resident in memory,
typically embedded at build time, and is decoded one sample at a time so that
a playback loop can keep pace with a hardware sample clock.
*/
package qoa

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	// QOAMagic is the magic number identifying a QOA file
	QOAMagic = 0x716f6166 // 'qoaf'
	// QOASliceLen is the number of samples in each QOA slice.
	QOASliceLen = 20
	// QOALMSLen is the length of the LMS history and weights.
	QOALMSLen = 4

	// QOAFileHeaderSize is the size of the file header: magic and total samples.
	QOAFileHeaderSize = 8
	// QOAFrameHeaderSize is the size of each frame header.
	QOAFrameHeaderSize = 8
	// QOALMSStateSize is the size of the per-channel LMS state block.
	QOALMSStateSize = QOALMSLen * 4
	// QOASliceSize is the size of a packed slice.
	QOASliceSize = 8
)

/*
The dequant_tab maps each of the scaleFactors and quantized residuals to
their unscaled & dequantized version.

Since qoa_div rounds away from the zero, the smallest entries are mapped to 3/4
instead of 1. The dequant_tab assumes the following dequantized values for each
of the quant_tab indices and is computed as:
float dqt[8] = {0.75, -0.75, 2.5, -2.5, 4.5, -4.5, 7, -7};
dequant_tab[s][q] <- round_ties_away_from_zero(scaleFactor_tab[s] * dqt[q])
*/
var qoaDequantTable = [16][8]int32{
	{1, -1, 3, -3, 5, -5, 7, -7},
	{5, -5, 18, -18, 32, -32, 49, -49},
	{16, -16, 53, -53, 95, -95, 147, -147},
	{34, -34, 113, -113, 203, -203, 315, -315},
	{63, -63, 210, -210, 378, -378, 588, -588},
	{104, -104, 345, -345, 621, -621, 966, -966},
	{158, -158, 528, -528, 950, -950, 1477, -1477},
	{228, -228, 760, -760, 1368, -1368, 2128, -2128},
	{316, -316, 1053, -1053, 1895, -1895, 2947, -2947},
	{422, -422, 1405, -1405, 2529, -2529, 3934, -3934},
	{548, -548, 1828, -1828, 3290, -3290, 5117, -5117},
	{696, -696, 2320, -2320, 4176, -4176, 6496, -6496},
	{868, -868, 2893, -2893, 5207, -5207, 8099, -8099},
	{1064, -1064, 3548, -3548, 6386, -6386, 9933, -9933},
	{1286, -1286, 4288, -4288, 7718, -7718, 12005, -12005},
	{1536, -1536, 5120, -5120, 9216, -9216, 14336, -14336},
}

// Dequantize returns the residual for a 4 bit scale factor and a 3 bit quantized code.
func Dequantize(scaleFactor, quantized uint8) int32 {
	return qoaDequantTable[scaleFactor&0x0f][quantized&0x07]
}

/*
LMS is the Least Mean Squares Filter, the heart of QOA. It predicts the next
sample based on the previous 4 reconstructed samples. It does so by continuously
adjusting 4 weights based on the residual of the previous prediction.

The next sample is predicted as the sum of (weight[i] * history[i]).

The adjustment of the weights is done with a "Sign-Sign-LMS" that adds or
subtracts the residual to each weight, based on the corresponding sample from
the history.

This is all done with fixed point integers. Hence the right-shifts when updating
the weights and calculating the prediction. The zero value is the all-zero state.
*/
type LMS struct {
	History [QOALMSLen]int16
	Weights [QOALMSLen]int16
}

// DecodeLMS reads an LMS state from its 16 byte big endian encoding: four
// history values followed by four weights.
func DecodeLMS(b [QOALMSStateSize]byte) LMS {
	var lms LMS
	for i := 0; i < QOALMSLen; i++ {
		lms.History[i] = int16(binary.BigEndian.Uint16(b[i*2:]))
		lms.Weights[i] = int16(binary.BigEndian.Uint16(b[8+i*2:]))
	}
	return lms
}

// Predict returns the prediction for the next sample. It has no side effects.
func (lms *LMS) Predict() int32 {
	// Four full scale products overflow 32 bits, so sum in int.
	prediction := int(lms.Weights[0])*int(lms.History[0]) +
		int(lms.Weights[1])*int(lms.History[1]) +
		int(lms.Weights[2])*int(lms.History[2]) +
		int(lms.Weights[3])*int(lms.History[3])
	return int32(prediction >> 13)
}

// Update folds a reconstructed sample and the residual that produced it into
// the filter state. Weight arithmetic wraps at 16 bits.
func (lms *LMS) Update(sample int16, residual int32) {
	// The right shift keeps the weights within the 16 bit range; the >> 13 in
	// Predict does the rest.
	delta := int16(residual >> 4)

	for i := 0; i < QOALMSLen; i++ {
		if lms.History[i] < 0 {
			lms.Weights[i] -= delta
		} else {
			lms.Weights[i] += delta
		}
	}

	lms.History[0] = lms.History[1]
	lms.History[1] = lms.History[2]
	lms.History[2] = lms.History[3]
	lms.History[3] = sample
}

/*
This specialized clamp function for the signed 16 bit range improves decode
performance quite a bit. The extra if() statement works nicely with the CPUs
branch prediction as this branch is rarely taken.
*/
func clampS16(v int32) int16 {
	if uint32(v+32768) > 65535 {
		if v <= -32768 {
			return -32768
		}
		if v >= 32767 {
			return 32767
		}
	}
	return int16(v)
}

// IsValidQOAFile reports whether the file at inputFile starts with the QOA magic word.
func IsValidQOAFile(inputFile string) (bool, error) {
	fileBytes := make([]byte, 4)
	file, err := os.Open(inputFile)
	if err != nil {
		return false, err
	}
	defer file.Close()

	_, err = io.ReadFull(file, fileBytes)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}

	if binary.BigEndian.Uint32(fileBytes) != QOAMagic {
		return false, fmt.Errorf("no magic word 'qoaf' found in %s", inputFile)
	}
	return true, nil
}
