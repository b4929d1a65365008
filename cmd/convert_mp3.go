//go:build !windows

package cmd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	mp3encoder "github.com/braheezy/shine-mp3/pkg/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
)

func decodeMp3(inputData []byte, filename string) (*pcmAudio, error) {
	logger.Info("Input format is MP3")

	// Decode the MP3 data using ebiten's mp3 decoder
	stream, err := mp3.DecodeWithoutResampling(bytes.NewReader(inputData))
	if err != nil {
		return nil, fmt.Errorf("decoding MP3 data: %w", err)
	}

	// The decoder always produces 16 bit little endian stereo
	audioData, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("reading MP3 stream: %w", err)
	}

	pcm := &pcmAudio{
		samples:    make([]int16, len(audioData)/2),
		sampleRate: stream.SampleRate(),
		channels:   2,
	}
	for i := range pcm.samples {
		pcm.samples[i] = int16(binary.LittleEndian.Uint16(audioData[i*2:]))
	}

	logger.Debug(filename, "channels", pcm.channels, "samplerate(hz)", pcm.sampleRate, "samples/channel", pcm.frames(), "size", formatSize(len(inputData)))
	return pcm, nil
}

func encodeMp3(outputFile string, pcm *pcmAudio) error {
	logger.Info("Output format is MP3")

	mp3File, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("creating MP3 file: %w", err)
	}
	defer mp3File.Close()

	mp3Encoder := mp3encoder.NewEncoder(pcm.sampleRate, pcm.channels)
	mp3Encoder.Write(mp3File, pcm.samples)
	return nil
}
