package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/braheezy/qoapwm/pkg/playback"
	"github.com/braheezy/qoapwm/pkg/qoa"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/cobra"
)

var (
	renderMaxDuty   uint16
	renderLoopCount int
)

var renderCmd = &cobra.Command{
	Use:   "render <input.qoa> <output.wav>",
	Short: "Record what the PWM pin would play into a WAV file",
	Long: "Run the pacing loop offline on a simulated clock and write every duty level it\n" +
		"sets, mapped back to PCM, into a WAV file. Useful to hear what a given PWM\n" +
		"resolution does to an asset before flashing it.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if filepath.Ext(args[0]) != ".qoa" || filepath.Ext(args[1]) != ".wav" {
			return fmt.Errorf("render reads a .qoa file and writes a .wav file")
		}
		if renderMaxDuty == 0 {
			return fmt.Errorf("--max-duty must be positive")
		}
		if renderLoopCount < 0 {
			return fmt.Errorf("--loop-count must not be negative")
		}
		return renderAudio(args[0], args[1], renderMaxDuty, renderLoopCount)
	},
}

func init() {
	renderCmd.Flags().Uint16Var(&renderMaxDuty, "max-duty", defaultMaxDuty, "PWM top value")
	renderCmd.Flags().IntVar(&renderLoopCount, "loop-count", 0, "Play the track this many extra times")
	rootCmd.AddCommand(renderCmd)
}

// dutyRecorder is a playback.DutySink that keeps every level as a PCM sample.
type dutyRecorder struct {
	maxDuty uint16
	samples []int
}

func (r *dutyRecorder) SetDuty(duty uint16) {
	r.samples = append(r.samples, int(playback.DutyToSample(duty, r.maxDuty)))
}

func (r *dutyRecorder) MaxDuty() uint16 {
	return r.maxDuty
}

func renderAudio(inputFile, outputFile string, maxDuty uint16, loops int) error {
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return err
	}
	dec, err := qoa.NewDecoder(data)
	if err != nil {
		return fmt.Errorf("%s: %w", inputFile, err)
	}

	const id = playback.TrackID("render")
	policy := playback.StopOnEOF
	if loops > 0 {
		policy = playback.LoopOnEOF
	}
	clock := &playback.ManualClock{}
	rec := &dutyRecorder{
		maxDuty: maxDuty,
		samples: make([]int, 0, int(dec.TotalSamples())*(loops+1)+1),
	}
	player := playback.NewPlayer(playback.Tracks{id: data}, rec, playback.Config{
		Clock:  clock,
		Logger: logger.WithPrefix("audio"),
		OnEOF:  policy,
	})

	player.Requests().Request(id)
	for player.Step() != playback.Idle {
		if player.Status().Loops > uint64(loops) {
			player.Requests().Stop()
		}
	}

	out, err := os.Create(outputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	enc := wav.NewEncoder(out, int(dec.SampleRate()), 16, 1, 1)
	buf := &audio.IntBuffer{
		Data:           rec.samples,
		Format:         &audio.Format{SampleRate: int(dec.SampleRate()), NumChannels: 1},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("writing WAV data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing WAV file: %w", err)
	}

	logger.Info(
		"Rendered",
		"file", outputFile,
		"levels", len(rec.samples),
		"max duty", maxDuty,
		"simulated time", time.Duration(clock.Now())*time.Microsecond,
	)
	return nil
}
