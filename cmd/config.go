package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/braheezy/qoapwm/pkg/playback"
	"github.com/braheezy/qoapwm/pkg/qoa"
	"gopkg.in/yaml.v3"
)

// defaultMaxDuty is an 8 bit PWM counter top.
const defaultMaxDuty = 255

// playConfig is the YAML track table and playback settings.
type playConfig struct {
	// EOF is what happens at the end of a track: stop or loop.
	EOF string `yaml:"eof"`
	// MaxDuty is the emulated PWM top value.
	MaxDuty uint16 `yaml:"max_duty"`
	// DeviceRate is the host output rate. Zero uses the first track's rate.
	DeviceRate int `yaml:"device_rate"`
	// Tracks maps ids to asset files. Relative paths are relative to the
	// config file.
	Tracks []trackEntry `yaml:"tracks"`
}

type trackEntry struct {
	ID   string `yaml:"id"`
	File string `yaml:"file"`
}

func defaultConfig() playConfig {
	return playConfig{
		EOF:     playback.StopOnEOF.String(),
		MaxDuty: defaultMaxDuty,
	}
}

// loadConfig reads the config at path over the defaults.
func loadConfig(path string) (playConfig, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i, t := range cfg.Tracks {
		if !filepath.IsAbs(t.File) {
			cfg.Tracks[i].File = filepath.Join(base, t.File)
		}
	}
	return cfg, nil
}

func (c playConfig) validate() error {
	if _, err := playback.ParseEOFPolicy(c.EOF); err != nil {
		return err
	}
	if c.MaxDuty == 0 {
		return errors.New("max_duty must be positive")
	}
	if c.DeviceRate < 0 {
		return errors.New("device_rate must not be negative")
	}

	seen := make(map[string]bool, len(c.Tracks))
	for i, t := range c.Tracks {
		switch {
		case t.ID == "":
			return fmt.Errorf("track %d has no id", i)
		case t.File == "":
			return fmt.Errorf("track %q has no file", t.ID)
		case seen[t.ID]:
			return fmt.Errorf("duplicate track id %q", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

func (c playConfig) eofPolicy() playback.EOFPolicy {
	// validate has already rejected anything else
	p, _ := playback.ParseEOFPolicy(c.EOF)
	return p
}

// track is one entry of the menu.
type track struct {
	id         playback.TrackID
	file       string
	sampleRate uint32
	samples    uint32
}

func (t track) duration() time.Duration {
	return samplesToDuration(t.samples, t.sampleRate)
}

// playlist is the in-memory track library plus the menu order.
type playlist struct {
	tracks []track
	lib    playback.Tracks
}

func newPlaylist() *playlist {
	return &playlist{lib: playback.Tracks{}}
}

// add reads a whole asset into memory and checks that it is playable.
func (p *playlist) add(id playback.TrackID, file string) error {
	if _, ok := p.lib[id]; ok {
		return fmt.Errorf("duplicate track id %q", id)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	dec, err := qoa.NewDecoder(data)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	p.lib[id] = data
	p.tracks = append(p.tracks, track{
		id:         id,
		file:       file,
		sampleRate: dec.SampleRate(),
		samples:    dec.TotalSamples(),
	})
	return nil
}

// addFile adds a file named on the command line, deriving its id from the
// file name.
func (p *playlist) addFile(file string) error {
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	id := playback.TrackID(base)
	for n := 2; ; n++ {
		if _, ok := p.lib[id]; !ok {
			break
		}
		id = playback.TrackID(fmt.Sprintf("%s-%d", base, n))
	}
	return p.add(id, file)
}

// loadPlaylist builds the library from the config tracks, then from files and
// directories given as arguments. Bad config entries are errors; bad
// arguments are skipped with a warning.
func loadPlaylist(cfg playConfig, args []string) (*playlist, error) {
	p := newPlaylist()
	for _, t := range cfg.Tracks {
		if err := p.add(playback.TrackID(t.ID), t.File); err != nil {
			return nil, fmt.Errorf("track %q: %w", t.ID, err)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			logger.Warn("Skipping", "path", arg, "err", err)
			continue
		}
		files := []string{arg}
		if info.IsDir() {
			files, err = findAllQOAFiles(arg)
			if err != nil {
				logger.Warn("Error walking directory", "path", arg, "err", err)
				continue
			}
		}
		for _, f := range files {
			if err := p.addFile(f); err != nil {
				logger.Warn("Skipping", "path", f, "err", err)
			}
		}
	}

	if len(p.tracks) == 0 {
		return nil, errors.New("no playable QOA files found")
	}
	return p, nil
}

// outputRate returns the host output rate: the configured one, or the rate
// of the first track.
func (p *playlist) outputRate(cfg playConfig) int {
	if cfg.DeviceRate > 0 {
		return cfg.DeviceRate
	}
	return int(p.tracks[0].sampleRate)
}
