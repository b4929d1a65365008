package cmd

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

var logger = log.New(os.Stdout)

func setupLogger() {
	logger = log.New(os.Stdout)
	logger.SetReportTimestamp(false)

	if verbose {
		logger.SetLevel(log.DebugLevel)
	} else if quiet {
		logger.SetOutput(io.Discard)
	}
}

// playerLogger returns the logger for the pacing loop. The TUI owns the
// terminal, so its logs go to logFile, or nowhere.
func playerLogger(tui bool, logFile string) (*log.Logger, func() error, error) {
	if !tui {
		return logger.WithPrefix("audio"), func() error { return nil }, nil
	}
	if logFile == "" {
		return log.New(io.Discard), func() error { return nil }, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	l := log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		Prefix:          "audio",
		Level:           logger.GetLevel(),
	})
	return l, f.Close, nil
}
