// Package config provides configuration management for lecturecast.
// Configuration is loaded from environment variables with sensible defaults;
// a .env file, when present, seeds variables that are not already set.
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
)

const (
	// Default values
	DefaultPort          = 8790
	DefaultLogLevel      = "info"
	DefaultDataDir       = ".lecturecast"
	DefaultVoice         = "en-US-ChristopherNeural"
	DefaultTheme         = "midnight"
	DefaultMaxJobs       = 2
	DefaultEncodeTimeout = 1800 // seconds
	DefaultProbeTimeout  = 30   // seconds
	DefaultDoctorTimeout = 30   // seconds

	// Environment variable names
	EnvPort          = "LECTURECAST_PORT"
	EnvLogLevel      = "LECTURECAST_LOG_LEVEL"
	EnvDataDir       = "LECTURECAST_DATA_DIR"
	EnvFFmpeg        = "LECTURECAST_FFMPEG"
	EnvFFprobe       = "LECTURECAST_FFPROBE"
	EnvVoice         = "LECTURECAST_VOICE"
	EnvTheme         = "LECTURECAST_THEME"
	EnvThemesFile    = "LECTURECAST_THEMES_FILE"
	EnvMaxJobs       = "LECTURECAST_MAX_JOBS"
	EnvEncodeTimeout = "LECTURECAST_ENCODE_TIMEOUT"
	EnvTTSSerialize  = "LECTURECAST_TTS_SERIALIZE"
	EnvWebhookURL    = "LECTURECAST_WEBHOOK_URL"
	EnvWebhookToken  = "LECTURECAST_WEBHOOK_TOKEN"
	EnvGeminiModel   = "LECTURECAST_GEMINI_MODEL"
	EnvGeminiAPIKey  = "GEMINI_API_KEY"

	// Database filename
	DBFilename = "lecturecast.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	JobsDir() string
	FFmpegPath() string
	FFprobePath() string
	Voice() string
	Theme() string
	ThemesFile() string
	MaxJobs() int
	EncodeTimeout() time.Duration
	ProbeTimeout() time.Duration
	DoctorTimeout() time.Duration
	TTSSerialize() bool
	WebhookURL() string
	WebhookToken() string
	GeminiAPIKey() string
	GeminiModel() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port          int
	logLevel      string
	dataDir       string
	ffmpeg        string
	ffprobe       string
	voice         string
	theme         string
	themesFile    string
	maxJobs       int
	encodeTimeout int
	ttsSerialize  bool
	webhookURL    string
	webhookToken  string
	geminiAPIKey  string
	geminiModel   string
}

// LoadDotEnv loads variables from path into the environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:          DefaultPort,
		logLevel:      DefaultLogLevel,
		dataDir:       defaultDataDir(),
		voice:         DefaultVoice,
		theme:         DefaultTheme,
		maxJobs:       DefaultMaxJobs,
		encodeTimeout: DefaultEncodeTimeout,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}
	if v := os.Getenv(EnvVoice); v != "" {
		cfg.voice = v
	}
	if th := os.Getenv(EnvTheme); th != "" {
		cfg.theme = th
	}

	if mj := os.Getenv(EnvMaxJobs); mj != "" {
		n, err := strconv.Atoi(mj)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvMaxJobs, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("invalid %s: must be at least 1", EnvMaxJobs)
		}
		cfg.maxJobs = n
	}

	if et := os.Getenv(EnvEncodeTimeout); et != "" {
		n, err := strconv.Atoi(et)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvEncodeTimeout, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", EnvEncodeTimeout)
		}
		cfg.encodeTimeout = n
	}

	if ts := os.Getenv(EnvTTSSerialize); ts != "" {
		b, err := strconv.ParseBool(ts)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvTTSSerialize, err)
		}
		cfg.ttsSerialize = b
	}

	cfg.ffmpeg = os.Getenv(EnvFFmpeg)
	cfg.ffprobe = os.Getenv(EnvFFprobe)
	cfg.themesFile = os.Getenv(EnvThemesFile)
	cfg.webhookURL = strings.TrimSpace(os.Getenv(EnvWebhookURL))
	cfg.webhookToken = os.Getenv(EnvWebhookToken)
	cfg.geminiAPIKey = os.Getenv(EnvGeminiAPIKey)
	cfg.geminiModel = os.Getenv(EnvGeminiModel)

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// JobsDir returns the root of the per-job workspaces
func (c *EnvConfig) JobsDir() string {
	return filepath.Join(c.dataDir, "jobs")
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpeg
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobe
}

// Voice returns the default narration voice
func (c *EnvConfig) Voice() string {
	return c.voice
}

// Theme returns the default slide theme
func (c *EnvConfig) Theme() string {
	return c.theme
}

func (c *EnvConfig) ThemesFile() string {
	return c.themesFile
}

// MaxJobs returns how many jobs may run at once
func (c *EnvConfig) MaxJobs() int {
	return c.maxJobs
}

// EncodeTimeout bounds one ffmpeg encode; zero means unbounded
func (c *EnvConfig) EncodeTimeout() time.Duration {
	return time.Duration(c.encodeTimeout) * time.Second
}

func (c *EnvConfig) ProbeTimeout() time.Duration {
	return time.Duration(DefaultProbeTimeout) * time.Second
}

func (c *EnvConfig) DoctorTimeout() time.Duration {
	return time.Duration(DefaultDoctorTimeout) * time.Second
}

// TTSSerialize reports whether synthesis calls must not overlap
func (c *EnvConfig) TTSSerialize() bool {
	return c.ttsSerialize
}

func (c *EnvConfig) WebhookURL() string {
	return c.webhookURL
}

func (c *EnvConfig) WebhookToken() string {
	return c.webhookToken
}

func (c *EnvConfig) GeminiAPIKey() string {
	return c.geminiAPIKey
}

func (c *EnvConfig) GeminiModel() string {
	return c.geminiModel
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
