package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/braheezy/qoapwm/pkg/playback"
	tea "github.com/charmbracelet/bubbletea"
)

// minimalModel plays every track once, in order, printing progress lines
// instead of drawing a menu.
type minimalModel struct {
	out     io.Writer
	player  *playback.Player
	tracks  []track
	current int
	// started is set once the player has taken the current request.
	started  bool
	lastTick time.Time
}

func startMinimalPlayer(ctx context.Context, out io.Writer, player *playback.Player, list *playlist) error {
	fmt.Fprintln(out, "Starting minimal player mode...")

	p := tea.NewProgram(
		initialMinimalModel(out, player, list),
		tea.WithoutRenderer(),
		tea.WithContext(ctx),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running player: %w", err)
	}
	return nil
}

func initialMinimalModel(out io.Writer, player *playback.Player, list *playlist) minimalModel {
	return minimalModel{
		out:    out,
		player: player,
		tracks: list.tracks,
	}
}

func (m minimalModel) Init() tea.Cmd {
	m.request()
	return tickCmd()
}

// request asks the player for the current track and prints its header.
func (m minimalModel) request() {
	t := m.tracks[m.current]
	m.player.Requests().Request(t.id)

	fmt.Fprintf(m.out, "\nPlaying: %s (%s)\n", t.id, t.file)
	fmt.Fprintf(m.out, "Sample Rate: %d Hz, Period: %dµs\n", t.sampleRate, 1_000_000/t.sampleRate)
	fmt.Fprintf(m.out, "Duration: %s\n", formatDuration(t.duration()))
}

func (m minimalModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case tickMsg:
		status := m.player.Status()
		t := m.tracks[m.current]

		if !m.started {
			m.started = !m.player.Requests().Pending()
			return m, tickCmd()
		}

		if status.State == playback.Idle {
			fmt.Fprintf(m.out, "\rTime: %s / %s\n", formatDuration(t.duration()), formatDuration(t.duration()))
			m.current++
			m.started = false
			if m.current == len(m.tracks) {
				fmt.Fprintln(m.out, "\nPlayback complete")
				return m, tea.Quit
			}
			m.request()
			return m, tickCmd()
		}

		if time.Since(m.lastTick) >= time.Second {
			fmt.Fprintf(m.out, "\rTime: %s / %s",
				formatDuration(samplesToDuration(status.SamplesRead, status.SampleRate)),
				formatDuration(t.duration()),
			)
			m.lastTick = time.Now()
		}
		return m, tickCmd()
	}

	return m, nil
}

func (m minimalModel) View() string {
	return ""
}
