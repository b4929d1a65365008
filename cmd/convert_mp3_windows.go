//go:build windows

package cmd

import "errors"

var errMp3Unsupported = errors.New("MP3 is not supported on Windows")

func decodeMp3(inputData []byte, filename string) (*pcmAudio, error) {
	return nil, errMp3Unsupported
}

func encodeMp3(outputFile string, pcm *pcmAudio) error {
	return errMp3Unsupported
}
