// Package config defines the overall configuration of the player. Values
// are taken from a config yml file or environment variables or both.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Debug enables debug logs and writing of captured screenshots to files.
var Debug bool

type ctxKey string

// LoggerCtxKey is the context key under which a request-scoped logger is
// stored, see the log package.
const LoggerCtxKey ctxKey = "logger"

// VisionConfig configures the text recognizer.
type VisionConfig struct {
	Language            string  `yaml:"language" env:"VISION_LANGUAGE" env-default:"eng"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"VISION_CONFIDENCE" env-default:"60"`
	ScreenshotQuality   int     `yaml:"screenshot_quality" env:"VISION_SCREENSHOT_QUALITY" env-default:"90"`
	DebugMode           bool    `yaml:"debug_mode" env:"VISION_DEBUG"`
	DebugDir            string  `yaml:"debug_dir" env:"VISION_DEBUG_DIR" env-default:"debug"`
}

// TimeoutPolicy decides what happens to a data row when a conditional-click
// step times out without having clicked anything.
type TimeoutPolicy string

const (
	TimeoutSkipStep TimeoutPolicy = "skip_step"
	TimeoutFailRow  TimeoutPolicy = "fail_row"
)

// PlaybackConfig configures the playback orchestrator.
type PlaybackConfig struct {
	OnConditionalTimeout TimeoutPolicy `yaml:"on_conditional_timeout" env:"PLAYBACK_ON_TIMEOUT" env-default:"skip_step"`
}

// BrowserConfig configures the chromedp surface.
type BrowserConfig struct {
	UserAgent    string `yaml:"user_agent" env:"BROWSER_USER_AGENT"`
	StartURL     string `yaml:"start_url" env:"BROWSER_START_URL"`
	WindowWidth  int    `yaml:"window_width" env:"BROWSER_WINDOW_WIDTH" env-default:"1920"`
	WindowHeight int    `yaml:"window_height" env:"BROWSER_WINDOW_HEIGHT" env-default:"1080"`
}

// Config defines the overall structure of the player configuration.
type Config struct {
	Vision   VisionConfig   `yaml:"vision"`
	Playback PlaybackConfig `yaml:"playback"`
	Browser  BrowserConfig  `yaml:"browser"`
}

// NewConfig reads the configuration from the given yaml file, applying
// environment variable overrides and defaults. A missing file is not an
// error; env vars and defaults alone then make up the config.
func NewConfig(configPath string) (*Config, error) {
	// pick up a .env file if there is one
	_ = godotenv.Load()

	var config Config
	if _, err := os.Stat(configPath); err != nil {
		if err := cleanenv.ReadEnv(&config); err != nil {
			return nil, err
		}
		if err := config.Validate(); err != nil {
			return nil, err
		}
		return &config, nil
	}

	if err := cleanenv.ReadConfig(configPath, &config); err != nil {
		return nil, err
	}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	d := yaml.NewDecoder(file)
	if err := d.Decode(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the parts of the config that cannot be expressed as
// cleanenv tags.
func (c *Config) Validate() error {
	switch c.Playback.OnConditionalTimeout {
	case TimeoutSkipStep, TimeoutFailRow, "":
	default:
		return fmt.Errorf("invalid on_conditional_timeout: %s", c.Playback.OnConditionalTimeout)
	}
	if c.Vision.ConfidenceThreshold < 0 || c.Vision.ConfidenceThreshold > 100 {
		return fmt.Errorf("vision confidence_threshold must be within [0,100], got %f", c.Vision.ConfidenceThreshold)
	}
	return nil
}

// GetLogLevel returns the log level that corresponds to the global debug
// flag.
func GetLogLevel() slog.Level {
	if Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
