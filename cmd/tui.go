package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/braheezy/qoapwm/pkg/playback"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

// ==========================================
// =============== Messages =================
// ==========================================
// tickMsg is sent periodically to refresh the player status.
type tickMsg time.Time

// tickCmd is a helper function to create a tickMsg.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// ==========================================
// ================ Models ==================
// ==========================================

// model is the UI side of the player. It only talks to the pacing loop
// through the request slot and the enable switch, and reads its status.
type model struct {
	// tracks is the menu, in load order.
	tracks []track
	// cursor is the index of the highlighted track.
	cursor int
	// player is the pacing loop running on its own goroutine.
	player *playback.Player
	// status is the last snapshot of the player.
	status playback.Status
	// progress is the progress bubble model.
	progress progress.Model
	// help shows the key bindings.
	help help.Model
}

// initialModel creates a new model for the tracks of list.
func initialModel(player *playback.Player, list *playlist) model {
	prog := progress.New(progress.WithGradient(qoaRed, qoaPink))
	prog.ShowPercentage = false
	prog.Width = maxWidth

	return model{
		tracks:   list.tracks,
		player:   player,
		status:   player.Status(),
		progress: prog,
		help:     help.New(),
	}
}

// ==========================================
// ================= Main ===================
// ==========================================
// startTUI runs the menu until the user quits or ctx is done.
func startTUI(ctx context.Context, player *playback.Player, list *playlist) error {
	p := tea.NewProgram(initialModel(player, list), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("alas, there's been an error: %w", err)
	}
	return nil
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	// Handle terminal resizing
	case tea.WindowSizeMsg:
		m.progress.Width = msg.Width - padding*2 - 4
		if m.progress.Width > maxWidth {
			m.progress.Width = maxWidth
		}
		m.help.Width = msg.Width
		return m, nil

	// Handle key presses
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, helpKeys.quit):
			m.player.Requests().Stop()
			return m, tea.Quit
		case key.Matches(msg, helpKeys.previousSong):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, helpKeys.nextSong):
			if m.cursor < len(m.tracks)-1 {
				m.cursor++
			}
		case key.Matches(msg, helpKeys.pickSong):
			m.player.Requests().Request(m.tracks[m.cursor].id)
		case key.Matches(msg, helpKeys.stop):
			m.player.Requests().Stop()
		case key.Matches(msg, helpKeys.toggleAudio):
			m.player.Enabled().Toggle()
		case key.Matches(msg, helpKeys.help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil

	// Refresh the status. This is called periodically.
	case tickMsg:
		m.status = m.player.Status()
		cmd := m.progress.SetPercent(m.status.Progress())
		return m, tea.Batch(cmd, tickCmd())

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

// ==========================================
// ================= View ===================
// ==========================================
// View renders the current state of the application.
func (m model) View() string {
	var items strings.Builder
	items.WriteString(listTitleStyle.Render("Tracks"))
	items.WriteString("\n\n")
	for i, t := range m.tracks {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		line := fmt.Sprintf("%s%-20s %6s", cursor, t.id, formatDuration(t.duration()))
		switch {
		case t.id == m.status.Track && m.status.State != playback.Idle:
			line = playingStyle.Render(line + "  ♪")
		case i == m.cursor:
			line = selectedStyle.Render(line)
		}
		items.WriteString(line)
		items.WriteString("\n")
	}

	pad := strings.Repeat(" ", padding)
	return listStyle.Render(items.String()) + "\n" +
		pad + m.statusLine() + "\n\n" +
		pad + m.progress.View() + "\n\n" +
		pad + m.help.View(helpKeys) + "\n"
}

func (m model) statusLine() string {
	audio := "audio on"
	if !m.player.Enabled().Enabled() {
		audio = "audio off"
	}

	s := m.status
	if s.State == playback.Idle {
		return statusStyle.Render(fmt.Sprintf("Idle · %s", audio))
	}
	line := fmt.Sprintf(
		"%s %s · %d Hz · period %v · %s / %s · %s",
		s.State, s.Track, s.SampleRate, s.Period,
		formatDuration(samplesToDuration(s.SamplesRead, s.SampleRate)),
		formatDuration(samplesToDuration(s.TotalSamples, s.SampleRate)),
		audio,
	)
	if s.Overruns > 0 {
		line += fmt.Sprintf(" · %d late", s.Overruns)
	}
	if s.Loops > 0 {
		line += fmt.Sprintf(" · loop %d", s.Loops)
	}
	return statusStyle.Render(line)
}

func samplesToDuration(samples, sampleRate uint32) time.Duration {
	if sampleRate == 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// formatDuration renders d as m:ss.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
