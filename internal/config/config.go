// Package config provides configuration management for the stitcher service.
// Configuration is loaded from an optional YAML file, then environment
// variables (a .env file in the working directory is honoured), on top of
// sensible defaults.
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
)

const (
	// Default values
	DefaultPort     = 8790
	DefaultBindAddr = "127.0.0.1"
	DefaultLogLevel = "info"
	DefaultDataDir  = ".stitcher"

	// Environment variable names
	EnvConfigFile       = "STITCHER_CONFIG"
	EnvPort             = "STITCHER_PORT"
	EnvBindAddr         = "STITCHER_BIND_ADDR"
	EnvLogLevel         = "STITCHER_LOG_LEVEL"
	EnvDataDir          = "STITCHER_DATA_DIR"
	EnvScratchDir       = "STITCHER_SCRATCH_DIR"
	EnvFFmpegPath       = "STITCHER_FFMPEG_PATH"
	EnvPublicBaseURL    = "STITCHER_PUBLIC_BASE_URL"
	EnvTrustedHosts     = "STITCHER_TRUSTED_HOSTS"
	EnvMaxConcurrent    = "STITCHER_MAX_CONCURRENT"
	EnvAdmissionTimeout = "STITCHER_ADMISSION_TIMEOUT"
	EnvEngineTimeout    = "STITCHER_ENGINE_TIMEOUT"
	EnvFetchTimeout     = "STITCHER_FETCH_TIMEOUT"
	EnvMaxClipBytes     = "STITCHER_MAX_CLIP_BYTES"
	EnvMaxClips         = "STITCHER_MAX_CLIPS"
	EnvAPIToken         = "STITCHER_API_TOKEN"
	EnvAllowedOrigins   = "STITCHER_ALLOWED_ORIGINS"

	// Database filename
	DBFilename = "stitcher.db"

	DefaultFFmpegPath       = "ffmpeg"
	DefaultMaxConcurrent    = 2
	DefaultAdmissionTimeout = 2 * time.Minute
	DefaultEngineTimeout    = 10 * time.Minute
	DefaultFetchTimeout     = 2 * time.Minute
	DefaultMaxClipBytes     = 512 * 1024 * 1024 // 512MB
	DefaultMaxClips         = 60

	// Encoder defaults shared by the normalizer and the re-encode concat.
	DefaultVideoCodec   = "libx264"
	DefaultVideoPreset  = "veryfast"
	DefaultVideoCRF     = 23
	DefaultAudioCodec   = "aac"
	DefaultAudioBitrate = "192k"
)

// DefaultTrustedHosts are blob storage domains generated media is served from.
// A leading dot matches any subdomain.
var DefaultTrustedHosts = []string{
	".public.blob.vercel-storage.com",
	"storage.googleapis.com",
	".r2.cloudflarestorage.com",
}

// Config defines the application configuration interface
type Config interface {
	Port() int
	BindAddr() string
	LogLevel() string
	DataDir() string
	DBPath() string
	ScratchDir() string
	FFmpegPath() string
	PublicBaseURL() string
	TrustedHosts() []string
	MaxConcurrent() int
	AdmissionTimeout() time.Duration
	EngineTimeout() time.Duration
	FetchTimeout() time.Duration
	MaxClipBytes() int64
	MaxClips() int
	APIToken() string
	AllowedOrigins() []string
	Encoder() EncoderSettings
}

// EncoderSettings is the uniform encode profile. Every normalized
// intermediate uses it, which is what makes stream-copy concat legal.
type EncoderSettings struct {
	VideoCodec   string `yaml:"video_codec"`
	VideoPreset  string `yaml:"video_preset"`
	VideoCRF     int    `yaml:"video_crf"`
	PixelFormat  string `yaml:"pixel_format"`
	AudioCodec   string `yaml:"audio_codec"`
	AudioBitrate string `yaml:"audio_bitrate"`
}

// DefaultEncoderSettings returns the production encode profile.
func DefaultEncoderSettings() EncoderSettings {
	return EncoderSettings{
		VideoCodec:   DefaultVideoCodec,
		VideoPreset:  DefaultVideoPreset,
		VideoCRF:     DefaultVideoCRF,
		PixelFormat:  "yuv420p",
		AudioCodec:   DefaultAudioCodec,
		AudioBitrate: DefaultAudioBitrate,
	}
}

// fileConfig mirrors the YAML file layout. Zero values mean "not set".
type fileConfig struct {
	Port             int             `yaml:"port"`
	BindAddr         string          `yaml:"bind_addr"`
	LogLevel         string          `yaml:"log_level"`
	DataDir          string          `yaml:"data_dir"`
	ScratchDir       string          `yaml:"scratch_dir"`
	FFmpegPath       string          `yaml:"ffmpeg_path"`
	PublicBaseURL    string          `yaml:"public_base_url"`
	TrustedHosts     []string        `yaml:"trusted_hosts"`
	MaxConcurrent    int             `yaml:"max_concurrent"`
	AdmissionTimeout string          `yaml:"admission_timeout"`
	EngineTimeout    string          `yaml:"engine_timeout"`
	FetchTimeout     string          `yaml:"fetch_timeout"`
	MaxClipBytes     int64           `yaml:"max_clip_bytes"`
	MaxClips         int             `yaml:"max_clips"`
	APIToken         string          `yaml:"api_token"`
	AllowedOrigins   []string        `yaml:"allowed_origins"`
	Encoder          EncoderSettings `yaml:"encoder"`
}

// EnvConfig holds the resolved configuration.
type EnvConfig struct {
	port          int
	bindAddr      string
	logLevel      string
	dataDir       string
	scratchDir    string
	ffmpegPath    string
	publicBaseURL string
	trustedHosts  []string

	maxConcurrent    int
	admissionTimeout time.Duration
	engineTimeout    time.Duration
	fetchTimeout     time.Duration
	maxClipBytes     int64
	maxClips         int
	apiToken         string
	allowedOrigins   []string

	encoder EncoderSettings
}

// New creates a new EnvConfig with defaults, YAML file and environment
// variable overrides, in that order.
func New() (*EnvConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &EnvConfig{
		port:             DefaultPort,
		bindAddr:         DefaultBindAddr,
		logLevel:         DefaultLogLevel,
		dataDir:          defaultDataDir(),
		ffmpegPath:       DefaultFFmpegPath,
		trustedHosts:     append([]string(nil), DefaultTrustedHosts...),
		maxConcurrent:    DefaultMaxConcurrent,
		admissionTimeout: DefaultAdmissionTimeout,
		engineTimeout:    DefaultEngineTimeout,
		fetchTimeout:     DefaultFetchTimeout,
		maxClipBytes:     DefaultMaxClipBytes,
		maxClips:         DefaultMaxClips,
		encoder:          DefaultEncoderSettings(),
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *EnvConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.Port != 0 {
		if err := validatePort(fc.Port); err != nil {
			return fmt.Errorf("invalid port in %s: %w", path, err)
		}
		c.port = fc.Port
	}
	setString(&c.bindAddr, fc.BindAddr)
	setString(&c.logLevel, fc.LogLevel)
	setString(&c.dataDir, fc.DataDir)
	setString(&c.scratchDir, fc.ScratchDir)
	setString(&c.ffmpegPath, fc.FFmpegPath)
	setString(&c.publicBaseURL, fc.PublicBaseURL)
	setString(&c.apiToken, fc.APIToken)
	if len(fc.TrustedHosts) > 0 {
		c.trustedHosts = normalizeHosts(fc.TrustedHosts)
	}
	if len(fc.AllowedOrigins) > 0 {
		c.allowedOrigins = normalizeHosts(fc.AllowedOrigins)
	}
	if fc.MaxConcurrent > 0 {
		c.maxConcurrent = fc.MaxConcurrent
	}
	if fc.MaxClipBytes > 0 {
		c.maxClipBytes = fc.MaxClipBytes
	}
	if fc.MaxClips > 0 {
		c.maxClips = fc.MaxClips
	}

	durations := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{fc.AdmissionTimeout, "admission_timeout", &c.admissionTimeout},
		{fc.EngineTimeout, "engine_timeout", &c.engineTimeout},
		{fc.FetchTimeout, "fetch_timeout", &c.fetchTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid %s in %s: %q", d.name, path, d.raw)
		}
		*d.dst = v
	}

	setString(&c.encoder.VideoCodec, fc.Encoder.VideoCodec)
	setString(&c.encoder.VideoPreset, fc.Encoder.VideoPreset)
	setString(&c.encoder.PixelFormat, fc.Encoder.PixelFormat)
	setString(&c.encoder.AudioCodec, fc.Encoder.AudioCodec)
	setString(&c.encoder.AudioBitrate, fc.Encoder.AudioBitrate)
	if fc.Encoder.VideoCRF > 0 {
		c.encoder.VideoCRF = fc.Encoder.VideoCRF
	}
	return nil
}

func (c *EnvConfig) applyEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if err := validatePort(port); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	setString(&c.bindAddr, os.Getenv(EnvBindAddr))
	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.dataDir, os.Getenv(EnvDataDir))
	setString(&c.scratchDir, os.Getenv(EnvScratchDir))
	setString(&c.ffmpegPath, os.Getenv(EnvFFmpegPath))
	setString(&c.publicBaseURL, os.Getenv(EnvPublicBaseURL))
	setString(&c.apiToken, os.Getenv(EnvAPIToken))

	if hosts := os.Getenv(EnvTrustedHosts); hosts != "" {
		c.trustedHosts = normalizeHosts(strings.Split(hosts, ","))
	}
	if origins := os.Getenv(EnvAllowedOrigins); origins != "" {
		c.allowedOrigins = normalizeHosts(strings.Split(origins, ","))
	}

	ints := []struct {
		env string
		dst *int
	}{
		{EnvMaxConcurrent, &c.maxConcurrent},
		{EnvMaxClips, &c.maxClips},
	}
	for _, i := range ints {
		raw := os.Getenv(i.env)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return fmt.Errorf("invalid %s: must be a positive integer", i.env)
		}
		*i.dst = v
	}

	if raw := os.Getenv(EnvMaxClipBytes); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 1 {
			return fmt.Errorf("invalid %s: must be a positive integer", EnvMaxClipBytes)
		}
		c.maxClipBytes = v
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{EnvAdmissionTimeout, &c.admissionTimeout},
		{EnvEngineTimeout, &c.engineTimeout},
		{EnvFetchTimeout, &c.fetchTimeout},
	}
	for _, d := range durations {
		raw := os.Getenv(d.env)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid %s: %q", d.env, raw)
		}
		*d.dst = v
	}

	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// BindAddr returns the interface the HTTP server listens on
func (c *EnvConfig) BindAddr() string {
	return c.bindAddr
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

// ScratchDir returns the root under which per-request workspaces are created
func (c *EnvConfig) ScratchDir() string {
	if c.scratchDir != "" {
		return c.scratchDir
	}
	return filepath.Join(c.dataDir, "scratch")
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) PublicBaseURL() string {
	return c.publicBaseURL
}

func (c *EnvConfig) TrustedHosts() []string {
	return c.trustedHosts
}

func (c *EnvConfig) MaxConcurrent() int {
	return c.maxConcurrent
}

func (c *EnvConfig) AdmissionTimeout() time.Duration {
	return c.admissionTimeout
}

func (c *EnvConfig) EngineTimeout() time.Duration {
	return c.engineTimeout
}

func (c *EnvConfig) FetchTimeout() time.Duration {
	return c.fetchTimeout
}

func (c *EnvConfig) MaxClipBytes() int64 {
	return c.maxClipBytes
}

func (c *EnvConfig) MaxClips() int {
	return c.maxClips
}

// APIToken is the bearer token required on /api routes. Empty disables auth.
func (c *EnvConfig) APIToken() string {
	return c.apiToken
}

// AllowedOrigins are browser origins permitted by CORS in addition to
// loopback dev servers.
func (c *EnvConfig) AllowedOrigins() []string {
	return c.allowedOrigins
}

func (c *EnvConfig) Encoder() EncoderSettings {
	return c.encoder
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func normalizeHosts(in []string) []string {
	out := make([]string, 0, len(in))
	for _, h := range in {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			out = append(out, h)
		}
	}
	return out
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
