package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/braheezy/qoapwm/pkg/qoa"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.qoa>",
	Short: "Check that a QOA file can be played and show its layout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := inspectFile(args[0])
		if report != nil {
			fmt.Fprint(cmd.OutOrStdout(), report.render())
		}
		return err
	},
	DisableFlagsInUseLine: true,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

// assetReport describes a decoded asset.
type assetReport struct {
	file         string
	size         int
	sampleRate   uint32
	totalSamples uint32
	samplesRead  uint32
	frames       uint32
	err          error
}

// inspectFile decodes the whole file. A report is returned whenever the
// headers could be read, even if decoding fails later on.
func inspectFile(file string) (*assetReport, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	dec, err := qoa.NewDecoder(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	for {
		if _, err = dec.NextSample(); err != nil {
			break
		}
	}
	r := &assetReport{
		file:         file,
		size:         len(data),
		sampleRate:   dec.SampleRate(),
		totalSamples: dec.TotalSamples(),
		samplesRead:  dec.SamplesRead(),
		frames:       dec.FramesRead(),
	}
	if !errors.Is(err, io.EOF) {
		r.err = err
		return r, fmt.Errorf("%s: sample %d: %w", file, dec.SamplesRead(), err)
	}
	return r, nil
}

func (r *assetReport) render() string {
	var b strings.Builder
	field := func(name, value string) {
		b.WriteString(fieldStyle.Render(name))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	duration := samplesToDuration(r.totalSamples, r.sampleRate)
	field("File", r.file)
	field("Size", formatSize(r.size))
	field("Sample rate", fmt.Sprintf("%d Hz", r.sampleRate))
	field("Samples", fmt.Sprintf("%d", r.totalSamples))
	field("Duration", fmt.Sprintf("%s (%v)", formatDuration(duration), duration))
	field("Frames", fmt.Sprintf("%d", r.frames))
	field("PWM period", fmt.Sprintf("%dµs", 1_000_000/r.sampleRate))
	if seconds := duration.Seconds(); seconds > 0 {
		field("Bitrate", fmt.Sprintf("%0.2f kbit/s", float64(r.size*8)/seconds/1024))
	}

	if r.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Decoding stopped after %d of %d samples: %v", r.samplesRead, r.totalSamples, r.err)))
		b.WriteString("\n")
	}
	return b.String()
}
