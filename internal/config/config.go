// Package config loads clipper settings from defaults, an optional YAML file,
// a .env file and CLIPPER_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rainyday01/video-cutter/internal/catalog"
	"github.com/rainyday01/video-cutter/internal/plan"
	"github.com/rainyday01/video-cutter/internal/sheet"
)

const (
	DefaultPort     = 8788
	DefaultLogLevel = "info"
	DefaultDataDir  = ".clipper"

	EnvPort        = "CLIPPER_PORT"
	EnvLogLevel    = "CLIPPER_LOG_LEVEL"
	EnvDataDir     = "CLIPPER_DATA_DIR"
	EnvFFmpegPath  = "CLIPPER_FFMPEG_PATH"
	EnvFFprobePath = "CLIPPER_FFPROBE_PATH"
	EnvQuality     = "CLIPPER_QUALITY"
	EnvStartOffset = "CLIPPER_START_OFFSET"
	EnvEndOffset   = "CLIPPER_END_OFFSET"
	EnvMinDuration = "CLIPPER_MIN_DURATION"
	EnvHeadless    = "CLIPPER_HEADLESS"
	EnvConfigFile  = "CLIPPER_CONFIG_FILE"

	DBFilename     = "clipper.db"
	ConfigFilename = "clipper.yaml"
	LogFilename    = "clipper.log"
)

// Config is the read-only view of the settings the commands use.
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	LogPath() string
	ConfigFile() string
	FFmpegPath() string
	FFprobePath() string
	Quality() plan.Quality
	Offsets() plan.OffsetConfig
	Headers() sheet.HeaderConfig
	Extensions() []string
	Headless() bool
}

// FileConfig is the layout of clipper.yaml. Durations are in seconds.
type FileConfig struct {
	Headers     sheet.HeaderConfig `yaml:"headers"`
	Extensions  []string           `yaml:"extensions"`
	FFmpegPath  string             `yaml:"ffmpeg_path"`
	FFprobePath string             `yaml:"ffprobe_path"`
	Defaults    struct {
		Quality     string   `yaml:"quality"`
		StartOffset *float64 `yaml:"start_offset"`
		EndOffset   *float64 `yaml:"end_offset"`
		MinDuration *float64 `yaml:"min_duration"`
	} `yaml:"defaults"`
}

// EnvConfig holds the resolved settings.
type EnvConfig struct {
	port        int
	logLevel    string
	dataDir     string
	configFile  string
	ffmpegPath  string
	ffprobePath string
	quality     plan.Quality
	offsets     plan.OffsetConfig
	headers     sheet.HeaderConfig
	extensions  []string
	headless    bool
}

// New resolves the configuration. A missing .env or YAML file is not an
// error; a malformed one is.
func New() (*EnvConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &EnvConfig{
		port:       DefaultPort,
		logLevel:   DefaultLogLevel,
		dataDir:    defaultDataDir(),
		quality:    plan.QualityHigh,
		offsets:    plan.DefaultOffsets(),
		headers:    sheet.DefaultHeaderConfig(),
		extensions: append([]string(nil), catalog.DefaultVideoExtensions...),
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}
	cfg.configFile = filepath.Join(cfg.dataDir, ConfigFilename)
	explicitFile := false
	if cf := os.Getenv(EnvConfigFile); cf != "" {
		cfg.configFile = cf
		explicitFile = true
	}

	if err := cfg.loadFile(explicitFile); err != nil {
		return nil, err
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.offsets.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) loadFile(required bool) error {
	data, err := os.ReadFile(c.configFile)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", c.configFile, err)
	}
	return c.apply(&fc)
}

func (c *EnvConfig) apply(fc *FileConfig) error {
	c.headers = c.headers.Merge(fc.Headers)
	for _, ext := range fc.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.extensions = appendUnique(c.extensions, ext)
	}
	if fc.FFmpegPath != "" {
		c.ffmpegPath = fc.FFmpegPath
	}
	if fc.FFprobePath != "" {
		c.ffprobePath = fc.FFprobePath
	}

	d := fc.Defaults
	if d.Quality != "" {
		q, err := plan.ParseQuality(d.Quality)
		if err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		c.quality = q
	}
	if d.StartOffset != nil {
		c.offsets.StartOffset = seconds(*d.StartOffset)
	}
	if d.EndOffset != nil {
		c.offsets.EndOffset = seconds(*d.EndOffset)
	}
	if d.MinDuration != nil {
		c.offsets.MinDuration = seconds(*d.MinDuration)
	}
	return nil
}

func (c *EnvConfig) loadEnv() error {
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		c.port = port
	}
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if p := os.Getenv(EnvFFmpegPath); p != "" {
		c.ffmpegPath = p
	}
	if p := os.Getenv(EnvFFprobePath); p != "" {
		c.ffprobePath = p
	}
	if q := os.Getenv(EnvQuality); q != "" {
		quality, err := plan.ParseQuality(q)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvQuality, err)
		}
		c.quality = quality
	}

	for _, o := range []struct {
		env string
		dst *time.Duration
	}{
		{EnvStartOffset, &c.offsets.StartOffset},
		{EnvEndOffset, &c.offsets.EndOffset},
		{EnvMinDuration, &c.offsets.MinDuration},
	} {
		v := os.Getenv(o.env)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", o.env, err)
		}
		*o.dst = seconds(f)
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		b, err := strconv.ParseBool(h)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = b
	}
	return nil
}

func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the run-history database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// LogPath returns the diagnostic log file
func (c *EnvConfig) LogPath() string {
	return filepath.Join(c.dataDir, "logs", LogFilename)
}

func (c *EnvConfig) ConfigFile() string {
	return c.configFile
}

// FFmpegPath is empty when ffmpeg should be discovered.
func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) Quality() plan.Quality {
	return c.quality
}

func (c *EnvConfig) Offsets() plan.OffsetConfig {
	return c.offsets
}

func (c *EnvConfig) Headers() sheet.HeaderConfig {
	return c.headers
}

func (c *EnvConfig) Extensions() []string {
	return c.extensions
}

// Headless disables the tray icon in serve mode.
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
