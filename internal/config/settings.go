package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings tunes the editor core. Every field has a default; the settings
// file only needs to name what it changes.
type Settings struct {
	SnapThreshold        float64       `yaml:"snap_threshold"`
	DefaultImageDuration float64       `yaml:"default_image_duration"`
	PreviewFPS           float64       `yaml:"preview_fps"`
	SeekToleranceFrames  float64       `yaml:"seek_tolerance_frames"`
	SeekRetries          int           `yaml:"seek_retries"`
	SeekTimeout          time.Duration `yaml:"seek_timeout"`
	ElementLatency       time.Duration `yaml:"element_latency"`
	FrameWidth           int           `yaml:"frame_width"`
	FrameHeight          int           `yaml:"frame_height"`
	HistoryLimit         int           `yaml:"history_limit"`
}

func DefaultSettings() Settings {
	return Settings{
		SnapThreshold:        0.1,
		DefaultImageDuration: 5,
		PreviewFPS:           30,
		SeekToleranceFrames:  1,
		SeekRetries:          3,
		SeekTimeout:          2 * time.Second,
		ElementLatency:       0,
		FrameWidth:           1920,
		FrameHeight:          1080,
		HistoryLimit:         100,
	}
}

// LoadSettings reads a YAML settings file over the defaults. A missing file
// yields the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

func (s Settings) Validate() error {
	switch {
	case s.SnapThreshold < 0:
		return errors.New("snap_threshold must not be negative")
	case s.DefaultImageDuration <= 0:
		return errors.New("default_image_duration must be positive")
	case s.PreviewFPS <= 0:
		return errors.New("preview_fps must be positive")
	case s.SeekToleranceFrames <= 0:
		return errors.New("seek_tolerance_frames must be positive")
	case s.SeekRetries < 1:
		return errors.New("seek_retries must be at least 1")
	case s.SeekTimeout <= 0:
		return errors.New("seek_timeout must be positive")
	case s.FrameWidth <= 0 || s.FrameHeight <= 0:
		return errors.New("frame size must be positive")
	case s.HistoryLimit < 1:
		return errors.New("history_limit must be at least 1")
	}
	return nil
}

// Save writes s as YAML.
func (s Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
