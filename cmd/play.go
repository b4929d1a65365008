package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/braheezy/qoapwm/pkg/playback"
	"github.com/braheezy/qoapwm/pkg/qoa"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	playLoop       bool
	playMaxDuty    uint16
	playDeviceRate int
	playMinimal    bool
	playLogFile    string
)

var playCmd = &cobra.Command{
	Use:   "play [file/directories]",
	Short: "Play .qoa audio file(s) through the emulated PWM pin",
	Long: "Load tracks from the config file and the given QOA files or directories, then\n" +
		"pick tracks from a menu while the pacing loop streams them to the speaker.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := playSettings(cmd)
		if err != nil {
			return err
		}
		if len(cfg.Tracks) == 0 && len(args) == 0 {
			return errors.New("nothing to play: give QOA files, directories or --config")
		}

		list, err := loadPlaylist(cfg, args)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		plog, closeLog, err := playerLogger(!playMinimal, playLogFile)
		if err != nil {
			return err
		}
		defer closeLog()

		sink, err := newSpeaker(list.outputRate(cfg), cfg.MaxDuty)
		if err != nil {
			return err
		}
		defer sink.Close()

		player := playback.NewPlayer(list.lib, sink, playback.Config{
			Logger: plog,
			OnEOF:  cfg.eofPolicy(),
		})
		logger.Debug(
			"Player ready",
			"tracks", len(list.tracks),
			"eof", cfg.EOF,
			"max duty", cfg.MaxDuty,
			"device rate", list.outputRate(cfg),
		)

		if playMinimal {
			return runWithPlayer(ctx, player, func(ctx context.Context) error {
				return startMinimalPlayer(ctx, cmd.OutOrStdout(), player, list)
			})
		}
		return runWithPlayer(ctx, player, func(ctx context.Context) error {
			return startTUI(ctx, player, list)
		})
	},
}

// playSettings loads --config, then applies the flags the user set.
func playSettings(cmd *cobra.Command) (playConfig, error) {
	cfg := defaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = loadConfig(configPath); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("loop") {
		cfg.EOF = playback.StopOnEOF.String()
		if playLoop {
			cfg.EOF = playback.LoopOnEOF.String()
		}
	}
	if flags.Changed("max-duty") {
		cfg.MaxDuty = playMaxDuty
	}
	if flags.Changed("device-rate") {
		cfg.DeviceRate = playDeviceRate
	}
	return cfg, cfg.validate()
}

// runWithPlayer runs the pacing loop on its own goroutine next to the UI
// side. When the UI returns, the loop is stopped; when the loop fails, the
// UI's context is cancelled.
func runWithPlayer(ctx context.Context, player *playback.Player, ui func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := player.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return ui(ctx)
	})
	return g.Wait()
}

// Recursive function to find all valid QOA files
func findAllQOAFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			valid, _ := qoa.IsValidQOAFile(path)
			if valid {
				files = append(files, path)
			}
		}
		return nil
	})
	return files, err
}

func init() {
	playCmd.Flags().BoolVar(&playLoop, "loop", false, "Restart tracks when they end instead of stopping")
	playCmd.Flags().Uint16Var(&playMaxDuty, "max-duty", defaultMaxDuty, "PWM top value; lower values mean coarser output")
	playCmd.Flags().IntVar(&playDeviceRate, "device-rate", 0, "Host output rate in Hz (default: rate of the first track)")
	playCmd.Flags().BoolVarP(&playMinimal, "minimal", "m", false, "Play every track once, without the menu")
	playCmd.Flags().StringVar(&playLogFile, "log-file", "", "Write pacing loop logs here while the menu is shown")
	rootCmd.AddCommand(playCmd)
}
