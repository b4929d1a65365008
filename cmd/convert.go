package cmd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/braheezy/qoa"
	pwmqoa "github.com/braheezy/qoapwm/pkg/qoa"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert <input-file> <output-file>",
	Short: "Convert between QOA and other audio formats",
	Long: fmt.Sprintf("Convert between QOA and other audio formats. QOA output is always mono, the only\n"+
		"layout the player accepts. The supported audio formats are:\n%v\n\n"+
		"Output to %v is not supported.", strings.Join(supportedFormats, "\n"), ".ogg"),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputFile := args[0]
		outputFile := args[1]

		if !isSupportedConversion(inputFile, outputFile) {
			return fmt.Errorf("unsupported conversion: %s -> %s", filepath.Ext(inputFile), filepath.Ext(outputFile))
		}
		return convertAudio(inputFile, outputFile)
	},
	DisableFlagsInUseLine: true,
}

var supportedFormats = []string{".qoa", ".wav", ".mp3", ".ogg", ".flac"}

// outputFormats are the formats convertAudio can write.
var outputFormats = []string{".qoa", ".wav", ".mp3", ".flac"}

func init() {
	rootCmd.AddCommand(convertCmd)
}

// Function to check if the conversion is supported
func isSupportedConversion(inputFile, outputFile string) bool {
	inExt := filepath.Ext(inputFile)
	outExt := filepath.Ext(outputFile)

	notSameFileExt := inExt != outExt
	bothSupportedExt := contains(supportedFormats, inExt) && contains(outputFormats, outExt)
	atLeastOneQoaExt := hasQOAExtension(inputFile) || hasQOAExtension(outputFile)

	return notSameFileExt && bothSupportedExt && atLeastOneQoaExt
}

func contains(arr []string, target string) bool {
	for _, item := range arr {
		if item == target {
			return true
		}
	}
	return false
}

func hasQOAExtension(filename string) bool {
	return filepath.Ext(filename) == ".qoa"
}

// pcmAudio is interleaved 16 bit PCM.
type pcmAudio struct {
	samples    []int16
	sampleRate int
	channels   int
}

// frames returns the number of samples per channel.
func (a *pcmAudio) frames() int {
	return len(a.samples) / a.channels
}

// mono averages all channels into one.
func (a *pcmAudio) mono() *pcmAudio {
	if a.channels == 1 {
		return a
	}
	out := make([]int16, a.frames())
	for i := range out {
		sum := 0
		for ch := 0; ch < a.channels; ch++ {
			sum += int(a.samples[i*a.channels+ch])
		}
		out[i] = int16(sum / a.channels)
	}
	return &pcmAudio{samples: out, sampleRate: a.sampleRate, channels: 1}
}

// Function to convert audio between formats
func convertAudio(inputFile, outputFile string) error {
	// Load the input audio file
	inputData, err := os.ReadFile(inputFile)
	if err != nil {
		return fmt.Errorf("loading audio file: %w", err)
	}

	var pcm *pcmAudio
	switch filepath.Ext(inputFile) {
	case ".qoa":
		pcm, err = decodeQOA(inputData, inputFile)
	case ".wav":
		pcm, err = decodeWAV(inputData, inputFile)
	case ".mp3":
		pcm, err = decodeMp3(inputData, inputFile)
	case ".ogg":
		pcm, err = decodeOGG(inputData, inputFile)
	case ".flac":
		pcm, err = decodeFLAC(inputData, inputFile)
	}
	if err != nil {
		return err
	}
	if pcm.channels < 1 || pcm.sampleRate < 1 {
		return fmt.Errorf("%s: invalid format: %d channels at %d Hz", inputFile, pcm.channels, pcm.sampleRate)
	}

	switch filepath.Ext(outputFile) {
	case ".qoa":
		err = encodeQOA(outputFile, pcm)
	case ".wav":
		err = encodeWAV(outputFile, pcm)
	case ".mp3":
		err = encodeMp3(outputFile, pcm)
	case ".flac":
		err = encodeFLAC(outputFile, pcm)
	}
	if err != nil {
		return err
	}

	logger.Infof("Conversion completed: %s -> %s", inputFile, outputFile)
	return nil
}

// decodeQOA reads a mono asset with the streaming decoder, exactly as the
// player would.
func decodeQOA(inputData []byte, filename string) (*pcmAudio, error) {
	logger.Info("Input format is QOA")
	dec, err := pwmqoa.NewDecoder(inputData)
	if err != nil {
		return nil, fmt.Errorf("decoding QOA data: %w", err)
	}
	raw, err := io.ReadAll(pwmqoa.NewReader(dec))
	if err != nil {
		return nil, fmt.Errorf("decoding QOA data: %w", err)
	}

	pcm := &pcmAudio{
		samples:    make([]int16, len(raw)/2),
		sampleRate: int(dec.SampleRate()),
		channels:   1,
	}
	for i := range pcm.samples {
		pcm.samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}

	logger.Debug(
		filename,
		"samplerate(hz)", dec.SampleRate(),
		"samples", dec.TotalSamples(),
		"frames", dec.FramesRead(),
		"size", formatSize(len(inputData)),
	)
	return pcm, nil
}

func decodeWAV(inputData []byte, filename string) (*pcmAudio, error) {
	logger.Info("Input format is WAV")
	wavDecoder := wav.NewDecoder(bytes.NewReader(inputData))

	// Read the WAV header to get format information
	if err := wavDecoder.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("reading WAV file header: %w", err)
	}
	if wavDecoder.BitDepth < 16 {
		return nil, fmt.Errorf("bit depth too low (%v < 16), cannot encode to QOA format", wavDecoder.BitDepth)
	}
	if wavDecoder.BitDepth > 16 {
		logger.Warn("Bit depth is greater than 16, this may result in loss of precision and sound quality!")
	}
	shift := int(wavDecoder.BitDepth) - 16

	// Attempt to estimate total number of samples
	bytesPerSample := int(wavDecoder.BitDepth / 8)
	numSamples := wavDecoder.PCMSize / (int(wavDecoder.NumChans) * bytesPerSample)

	pcm := &pcmAudio{
		samples:    make([]int16, 0, numSamples*int(wavDecoder.NumChans)),
		sampleRate: int(wavDecoder.SampleRate),
		channels:   int(wavDecoder.NumChans),
	}

	// Initialize an audio.IntBuffer to hold the PCM data
	pcmBuffer := &audio.IntBuffer{Data: make([]int, 4096), Format: wavDecoder.Format()}
	for {
		n, err := wavDecoder.PCMBuffer(pcmBuffer)
		if err != nil {
			return nil, fmt.Errorf("decoding WAV file: %w", err)
		}
		if n == 0 {
			break
		}
		for _, v := range pcmBuffer.Data[:n] {
			pcm.samples = append(pcm.samples, int16(v>>shift))
		}
	}

	logger.Debug(
		filename,
		"channels", pcm.channels,
		"samplerate(hz)", pcm.sampleRate,
		"samples/channel", pcm.frames(),
		"bit depth", wavDecoder.SampleBitDepth(),
		"size", formatSize(len(inputData)),
	)
	return pcm, nil
}

func decodeOGG(inputData []byte, filename string) (*pcmAudio, error) {
	logger.Info("Input format is OGG")
	oggData, format, err := oggvorbis.ReadAll(bytes.NewReader(inputData))
	if err != nil {
		return nil, fmt.Errorf("decoding OGG data: %w", err)
	}

	pcm := &pcmAudio{
		samples:    make([]int16, len(oggData)),
		sampleRate: format.SampleRate,
		channels:   format.Channels,
	}
	for i, val := range oggData {
		// Scale to int16 range
		pcm.samples[i] = int16(math.Max(-1, math.Min(1, float64(val))) * 32767.0)
	}

	logger.Debug(filename, "channels", format.Channels, "samplerate(hz)", format.SampleRate, "samples/channel", pcm.frames(), "size", formatSize(len(inputData)))
	return pcm, nil
}

func decodeFLAC(inputData []byte, filename string) (*pcmAudio, error) {
	logger.Info("Input format is FLAC")
	flacStream, err := flac.New(bytes.NewReader(inputData))
	if err != nil {
		return nil, fmt.Errorf("opening FLAC file: %w", err)
	}
	defer flacStream.Close()

	flacMetadata := flacStream.Info
	if flacMetadata.BitsPerSample > 16 {
		logger.Warn("Bit depth is greater than 16, this may result in loss of precision and sound quality!")
	}
	shift := 0
	if flacMetadata.BitsPerSample > 16 {
		shift = int(flacMetadata.BitsPerSample) - 16
	}

	pcm := &pcmAudio{
		sampleRate: int(flacMetadata.SampleRate),
		channels:   int(flacMetadata.NChannels),
	}
	for {
		// Decode FLAC frame
		flacFrame, err := flacStream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parsing FLAC frame: %w", err)
		}

		// Collect audio samples
		for i := 0; i < flacFrame.Subframes[0].NSamples; i++ {
			for _, subframe := range flacFrame.Subframes {
				pcm.samples = append(pcm.samples, int16(subframe.Samples[i]>>shift))
			}
		}
	}

	logger.Debug(
		filename,
		"channels", flacMetadata.NChannels,
		"samplerate(hz)", flacMetadata.SampleRate,
		"samples/channel", pcm.frames(),
		"bit depth", flacMetadata.BitsPerSample,
		"size", formatSize(len(inputData)),
	)
	return pcm, nil
}

func encodeQOA(outputFile string, pcm *pcmAudio) error {
	logger.Info("Output format is QOA")
	if pcm.channels > 1 {
		logger.Info("Downmixing to mono", "channels", pcm.channels)
	}
	mono := pcm.mono()

	q := qoa.NewEncoder(uint32(mono.sampleRate), 1, uint32(mono.frames()))
	qoaEncodedData, err := q.Encode(mono.samples)
	if err != nil {
		return fmt.Errorf("encoding audio data to QOA: %w", err)
	}
	if err := os.WriteFile(outputFile, qoaEncodedData, 0o644); err != nil {
		return fmt.Errorf("writing QOA data: %w", err)
	}

	if q.Samples > 0 {
		psnr := -20.0 * math.Log10(math.Sqrt(float64(q.ErrorCount)/float64(q.Samples))/32768.0)
		seconds := float64(q.Samples) / float64(q.SampleRate)
		bitrate := float64(len(qoaEncodedData)*8) / seconds / 1024
		logger.Debug(outputFile, "size", formatSize(len(qoaEncodedData)), "bitrate", fmt.Sprintf("%0.2f kbit/s", bitrate), "psnr", fmt.Sprintf("%0.2f", psnr))
	}
	return nil
}

func encodeWAV(outputFile string, pcm *pcmAudio) error {
	logger.Info("Output format is WAV")
	// Convert int16 to int for WAV conversion
	intAudioData := make([]int, len(pcm.samples))
	for i, val := range pcm.samples {
		intAudioData[i] = int(val)
	}

	wavBuffer := &audio.IntBuffer{
		Data:           intAudioData,
		Format:         &audio.Format{SampleRate: pcm.sampleRate, NumChannels: pcm.channels},
		SourceBitDepth: 16,
	}
	// Write the WAV audio data to WAV file
	wavFile, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("creating WAV file: %w", err)
	}
	defer wavFile.Close()

	wavEncoder := wav.NewEncoder(wavFile, pcm.sampleRate, 16, pcm.channels, 1)
	if err = wavEncoder.Write(wavBuffer); err != nil {
		return fmt.Errorf("writing WAV data: %w", err)
	}
	return wavEncoder.Close()
}

func encodeFLAC(outputFile string, pcm *pcmAudio) error {
	logger.Info("Output format is FLAC")
	numChannels := pcm.channels
	channels, err := getFLACChannels(numChannels)
	if err != nil {
		return err
	}

	flacFile, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("creating FLAC file: %w", err)
	}
	defer flacFile.Close()

	flacEnc, err := flac.NewEncoder(flacFile, &meta.StreamInfo{
		SampleRate:    uint32(pcm.sampleRate),
		NChannels:     uint8(numChannels),
		BitsPerSample: 16,
		BlockSizeMin:  16,
		BlockSizeMax:  4096,
	})
	if err != nil {
		return fmt.Errorf("initializing FLAC encoder: %w", err)
	}

	// Put the audio data into FLAC frames
	const numSamplesPerChannel = 4096
	totalSamples := pcm.frames()

	subframes := make([]*frame.Subframe, numChannels)
	for i := range subframes {
		subframes[i] = &frame.Subframe{
			Samples: make([]int32, numSamplesPerChannel),
		}
	}

	for i := 0; i < totalSamples; i += numSamplesPerChannel {
		end := min(i+numSamplesPerChannel, totalSamples)
		actualBlockSize := end - i

		for _, subframe := range subframes {
			subframe.SubHeader = frame.SubHeader{
				Pred:   frame.PredVerbatim,
				Order:  0,
				Wasted: 0,
			}
			subframe.NSamples = actualBlockSize
			subframe.Samples = subframe.Samples[:actualBlockSize]
		}

		// Map PCM data into subframes
		for frameIndex := 0; frameIndex < actualBlockSize; frameIndex++ {
			for ch := 0; ch < numChannels; ch++ {
				subframes[ch].Samples[frameIndex] = int32(pcm.samples[(i+frameIndex)*numChannels+ch])
			}
		}

		frameData := &frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: false,
				BlockSize:         uint16(actualBlockSize),
				SampleRate:        uint32(pcm.sampleRate),
				Channels:          channels,
				BitsPerSample:     16,
			},
			Subframes: subframes,
		}
		if err := flacEnc.WriteFrame(frameData); err != nil {
			return fmt.Errorf("writing FLAC frame: %w", err)
		}
	}

	if err := flacEnc.Close(); err != nil {
		return fmt.Errorf("closing FLAC encoder: %w", err)
	}
	return nil
}

func getFLACChannels(numChannels int) (frame.Channels, error) {
	switch numChannels {
	case 1:
		return frame.ChannelsMono, nil
	case 2:
		return frame.ChannelsLR, nil
	case 3:
		return frame.ChannelsLRC, nil
	case 4:
		return frame.ChannelsLRLsRs, nil
	case 5:
		return frame.ChannelsLRCLsRs, nil
	case 6:
		return frame.ChannelsLRCLfeLsRs, nil
	case 7:
		return frame.ChannelsLRCLfeCsSlSr, nil
	case 8:
		return frame.ChannelsLRCLfeLsRsSlSr, nil
	default:
		return 0, fmt.Errorf("unsupported channel count: %d", numChannels)
	}
}

// formatSize converts the inputSize to a human readable format
func formatSize(inputSize int) string {
	const unit = 1024
	if inputSize < unit {
		return fmt.Sprintf("%d B", inputSize)
	}
	div, exp := int64(unit), 0
	for n := inputSize / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(inputSize)/float64(div), "KMGTPE"[exp])
}
