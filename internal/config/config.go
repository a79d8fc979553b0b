package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/siddug/wave-sub000/internal/logging"
)

// Config holds configurable parameters.
type Config struct {
	APIEndpoint               string  `json:"API_ENDPOINT"`
	Token                     string  `json:"TOKEN"`
	Model                     string  `json:"MODEL"`
	ASRModelPath              string  `json:"ASR_MODEL_PATH"`
	Language                  string  `json:"LANGUAGE"`
	Prompt                    string  `json:"PROMPT"`
	TEXTPath                  string  `json:"TEXT_PATH"`
	SegmentsPath              string  `json:"SEGMENTS_PATH"`
	ExtraConfig               string  `json:"ExtraConfig"`
	Channels                  int     `json:"CHANNELS"`
	SAMPLING_RATE             int     `json:"SAMPLING_RATE"`
	SAMPLING_RATE_DEPTH       int     `json:"SAMPLING_RATE_DEPTH"`
	BIT_RATE                  int     `json:"BIT_RATE"`
	CODECS                    string  `json:"CODECS"`
	CONTAINER                 string  `json:"CONTAINER"`
	Normalizer                string  `json:"NORMALIZER"`
	RequestTimeout            int     `json:"REQUEST_TIMEOUT"`
	MaxRetry                  int     `json:"MAX_RETRY"`
	RetryBaseDelay            float64 `json:"RETRY_BASE_DELAY"`
	EnableHTTP2               bool    `json:"ENABLE_HTTP2"`
	VerifySSL                 bool    `json:"VERIFY_SSL"`
	HoldKey                   string  `json:"HOLD_KEY"`
	ToggleKey                 string  `json:"TOGGLE_KEY"`
	ToggleDebounceMS          int     `json:"TOGGLE_DEBOUNCE_MS"`
	WatchdogSeconds           int     `json:"WATCHDOG_SECONDS"`
	LLMBaseURL                string  `json:"LLM_BASE_URL"`
	LLMModel                  string  `json:"LLM_MODEL"`
	LLMMinChars               int     `json:"LLM_MIN_CHARS"`
	ModelDir                  string  `json:"MODEL_DIR"`
	SettingsPath              string  `json:"SETTINGS_PATH"`
	HistoryDB                 string  `json:"HISTORY_DB"`
	Indicator                 string  `json:"INDICATOR"`
	ListenAddr                string  `json:"LISTEN_ADDR"`
	CacheDir                  string  `json:"CACHE_DIR"`
	KeepCache                 bool    `json:"KEEP_CACHE"`
	Notification              bool    `json:"NOTIFICATION"`
	RequestFailedNotification bool    `json:"REQUEST_FAILED_NOTIFICATION"`
	LogLevel                  string  `json:"LOG_LEVEL"`
	FFMPEG_DEBUG              bool    `json:"FFMPEG_DEBUG"`
	RECORD_DEBUG              bool    `json:"RECORD_DEBUG"`
	HOTKEY_DEBUG              bool    `json:"HOTKEY_DEBUG"`
	UPLOAD_DEBUG              bool    `json:"UPLOAD_DEBUG"`
	SESSION_DEBUG             bool    `json:"SESSION_DEBUG"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		APIEndpoint:         "http://127.0.0.1:8080/inference",
		TEXTPath:            "text",
		SegmentsPath:        "segments",
		Channels:            1,
		SAMPLING_RATE:       16000,
		SAMPLING_RATE_DEPTH: 16,
		BIT_RATE:            128,
		CODECS:              "opus",
		CONTAINER:           "ogg",
		Normalizer:          "native",
		RequestTimeout:      30,
		MaxRetry:            3,
		RetryBaseDelay:      0.5,
		EnableHTTP2:         true,
		VerifySSL:           true,
		HoldKey:             "rctrl",
		ToggleKey:           "alt+q",
		ToggleDebounceMS:    300,
		WatchdogSeconds:     300,
		LLMMinChars:         10,
		SettingsPath:        "settings.json",
		HistoryDB:           "history.sqlite",
		Indicator:           "console",
		LogLevel:            "info",
	}
}

// Load loads config from JSON file if provided.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

// SaveDefault writes a default config JSON to the provided path.
func SaveDefault(path string) error {
	cfg := DefaultConfig()
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// ApplyEnv fills secrets and endpoints that were left empty from the
// environment (populated from .env by main).
func ApplyEnv(cfg *Config) {
	if cfg.Token == "" {
		cfg.Token = strings.TrimSpace(os.Getenv("STT_TOKEN"))
	}
	if cfg.LLMBaseURL == "" {
		cfg.LLMBaseURL = strings.TrimSpace(os.Getenv("OLLAMA_BASE_URL"))
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = strings.TrimSpace(os.Getenv("OLLAMA_MODEL"))
	}
}

// Validate verifies config fields and returns an error if any value is invalid.
func Validate(cfg *Config) error {
	if cfg.Channels < 1 || cfg.Channels > 8 {
		return fmt.Errorf("invalid Channels: %d (allowed 1..8)", cfg.Channels)
	}
	if cfg.SAMPLING_RATE <= 0 {
		return fmt.Errorf("invalid SAMPLING_RATE: %d (must be > 0)", cfg.SAMPLING_RATE)
	}
	allowedDepth := map[int]bool{8: true, 16: true, 24: true, 32: true}
	if !allowedDepth[cfg.SAMPLING_RATE_DEPTH] {
		return fmt.Errorf("invalid SAMPLING_RATE_DEPTH: %d (allowed: 8,16,24,32)", cfg.SAMPLING_RATE_DEPTH)
	}
	if cfg.BIT_RATE <= 0 {
		return fmt.Errorf("invalid BIT_RATE: %d (must be > 0)", cfg.BIT_RATE)
	}
	if !allowedCodecs[strings.ToLower(cfg.CODECS)] {
		return fmt.Errorf("invalid CODECS: %s (allowed: OPUS, LIBOPUS, WAVPACK, AAC, AC3, EAC3, MP3, MP2, MP1, FLAC, ALAC, PCM, VORBIS, LIBVORBIS, VORB, ADPCM, AMR, PCM_S16LE, ...)", cfg.CODECS)
	}
	if !allowedContainers[strings.ToLower(cfg.CONTAINER)] {
		return fmt.Errorf("invalid CONTAINER: %s (allowed: WAV, AC3, AC4, OGG, OGA, MP3, FLAC, EAC3, AAC, M4A, MP4, OPUS, WEBM, ...)", cfg.CONTAINER)
	}
	switch strings.ToLower(cfg.Normalizer) {
	case "native", "ffmpeg":
	default:
		return fmt.Errorf("invalid NORMALIZER: %s (allowed: native, ffmpeg)", cfg.Normalizer)
	}
	switch strings.ToLower(cfg.Indicator) {
	case "none", "console", "websocket":
	default:
		return fmt.Errorf("invalid INDICATOR: %s (allowed: none, console, websocket)", cfg.Indicator)
	}
	if strings.EqualFold(cfg.Indicator, "websocket") && cfg.ListenAddr == "" {
		return fmt.Errorf("INDICATOR websocket requires LISTEN_ADDR")
	}
	if cfg.WatchdogSeconds <= 0 {
		return fmt.Errorf("invalid WATCHDOG_SECONDS: %d (must be > 0)", cfg.WatchdogSeconds)
	}
	if cfg.ToggleDebounceMS < 0 {
		return fmt.Errorf("invalid TOGGLE_DEBOUNCE_MS: %d (must be >= 0)", cfg.ToggleDebounceMS)
	}
	if cfg.MaxRetry < 1 {
		return fmt.Errorf("invalid MAX_RETRY: %d (must be >= 1)", cfg.MaxRetry)
	}
	if strings.TrimSpace(cfg.HistoryDB) == "" {
		return fmt.Errorf("HISTORY_DB must not be empty")
	}
	return nil
}

var allowedCodecs = map[string]bool{
	"opus":      true,
	"libopus":   true,
	"wavpack":   true,
	"aac":       true,
	"ac3":       true,
	"eac3":      true,
	"mp3":       true,
	"mp2":       true,
	"mp1":       true,
	"flac":      true,
	"alac":      true,
	"pcm":       true,
	"vorbis":    true,
	"libvorbis": true,
	"vorb":      true,
	"adpcm":     true,
	"amr":       true,
	"pcm_f32be": true,
	"pcm_f32le": true,
	"pcm_f64be": true,
	"pcm_f64le": true,
	"pcm_s16be": true,
	"pcm_s16le": true,
	"pcm_s24be": true,
	"pcm_s24le": true,
	"pcm_s32be": true,
	"pcm_s32le": true,
	"pcm_s64be": true,
	"pcm_s64le": true,
	"pcm_s8":    true,
}

var allowedContainers = map[string]bool{
	"wav":   true,
	"ac3":   true,
	"ac4":   true,
	"ogg":   true,
	"oga":   true,
	"mp3":   true,
	"flac":  true,
	"eac3":  true,
	"aac":   true,
	"m4a":   true,
	"mp4":   true,
	"opus":  true,
	"webm":  true,
	"s8":    true,
	"s16be": true,
	"s16le": true,
	"s24be": true,
	"s24le": true,
	"s32be": true,
	"s32le": true,
	"f32be": true,
	"f32le": true,
	"f64be": true,
	"f64le": true,
}

// InitCacheDir validates/creates the configured cache directory.
// It mutates cfg.CacheDir to an absolute path or clears it on failure.
func InitCacheDir(cfg *Config) {
	if cfg.CacheDir == "" {
		return
	}
	log := logging.NewLogger(context.Background()).WithComponent("main")
	abs, err := filepath.Abs(cfg.CacheDir)
	if err != nil {
		log.Warnf("cache-dir path invalid '%s': %v. Falling back to cwd.", cfg.CacheDir, err)
		cfg.CacheDir = ""
		return
	}
	info, err := os.Stat(abs)
	if err == nil {
		if !info.IsDir() {
			log.Warnf("cache-dir '%s' exists but is not a directory. Falling back to cwd.", abs)
			cfg.CacheDir = ""
			return
		}
		cfg.CacheDir = abs
		log.Infof("using existing cache-dir: %s", cfg.CacheDir)
		return
	}
	if os.IsNotExist(err) {
		if err := os.MkdirAll(abs, 0755); err != nil {
			log.Warnf("cannot create cache-dir '%s': %v. Falling back to cwd.", abs, err)
			cfg.CacheDir = ""
			return
		}
		cfg.CacheDir = abs
		log.Infof("created and using cache-dir: %s", cfg.CacheDir)
		return
	}
	log.Warnf("cannot access cache-dir '%s': %v. Falling back to cwd.", abs, err)
	cfg.CacheDir = ""
}

// TempDir returns the directory to use for temporary files.
func TempDir(cfg *Config) string {
	if cfg.CacheDir != "" {
		return cfg.CacheDir
	}
	cwd, _ := os.Getwd()
	return cwd
}

// Watchdog returns the session watchdog bound.
func (c Config) Watchdog() time.Duration {
	return time.Duration(c.WatchdogSeconds) * time.Second
}

// ToggleDebounce returns the toggle shortcut debounce window.
func (c Config) ToggleDebounce() time.Duration {
	return time.Duration(c.ToggleDebounceMS) * time.Millisecond
}

// DebugComponents lists the logging components raised to debug level.
func (c Config) DebugComponents() []string {
	var out []string
	if c.FFMPEG_DEBUG {
		out = append(out, "ffmpeg")
	}
	if c.RECORD_DEBUG {
		out = append(out, "record")
	}
	if c.HOTKEY_DEBUG {
		out = append(out, "hotkey", "shortcut")
	}
	if c.UPLOAD_DEBUG {
		out = append(out, "upload")
	}
	if c.SESSION_DEBUG {
		out = append(out, "session", "pipeline", "dispatch")
	}
	return out
}

// ContainerExt maps a container name to its lowercase file extension.
func ContainerExt(container string) string {
	if c := strings.ToLower(strings.TrimSpace(container)); c != "" {
		return c
	}
	return "ogg"
}
