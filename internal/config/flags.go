package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// FlagValues collects the flags given on the command line. Only flags the
// user actually passed are applied, so config file values survive.
type FlagValues struct {
	OutputPath string

	overrides []func(*Config)
}

// field is a command-line value that records an override when Set is called.
type field[T any] struct {
	fv     *FlagValues
	target func(*Config) *T
	parse  func(string) (T, error)
	last   string
}

func (f *field[T]) String() string {
	if f == nil {
		return ""
	}
	return f.last
}

func (f *field[T]) Set(raw string) error {
	v, err := f.parse(raw)
	if err != nil {
		return err
	}
	f.last = raw
	target := f.target
	f.fv.overrides = append(f.fv.overrides, func(c *Config) { *target(c) = v })
	return nil
}

func parseString(v string) (string, error) { return v, nil }

func parseFloat(v string) (float64, error) { return strconv.ParseFloat(v, 64) }

// parseBoolExt accepts yes/no style values in addition to true/false.
func parseBoolExt(v string) (bool, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean: %s", v)
}

func bind[T any](fs *flag.FlagSet, fv *FlagValues, name, usage string, parse func(string) (T, error), target func(*Config) *T) {
	fs.Var(&field[T]{fv: fv, target: target, parse: parse}, name, usage)
}

// BindFlags registers every config flag on fs.
func BindFlags(fs *flag.FlagSet) *FlagValues {
	fv := &FlagValues{}
	str := func(name, usage string, target func(*Config) *string) {
		bind(fs, fv, name, usage, parseString, target)
	}
	num := func(name, usage string, target func(*Config) *int) {
		bind(fs, fv, name, usage, strconv.Atoi, target)
	}
	boolean := func(name, usage string, target func(*Config) *bool) {
		bind(fs, fv, name, usage+" (true/false)", parseBoolExt, target)
	}

	// [ASR endpoint]
	str("api-endpoint", "ASR endpoint URL", func(c *Config) *string { return &c.APIEndpoint })
	str("token", "Authorization token", func(c *Config) *string { return &c.Token })
	str("model", "ASR model name sent with each upload", func(c *Config) *string { return &c.Model })
	str("asr-model-path", "model path loaded into the ASR server at startup", func(c *Config) *string { return &c.ASRModelPath })
	str("language", "language", func(c *Config) *string { return &c.Language })
	str("prompt", "ASR prompt", func(c *Config) *string { return &c.Prompt })
	str("text-path", "JSON path to extract text", func(c *Config) *string { return &c.TEXTPath })
	str("segments-path", "JSON path to the segment array", func(c *Config) *string { return &c.SegmentsPath })
	str("extra-config", "extra JSON config to merge into request payload", func(c *Config) *string { return &c.ExtraConfig })

	// [Audio]
	str("codecs", "archive audio codec (e.g. OPUS, AAC, MP3, FLAC)", func(c *Config) *string { return &c.CODECS })
	str("container", "archive audio container (e.g. OGG, MP3, FLAC, M4A)", func(c *Config) *string { return &c.CONTAINER })
	str("normalizer", "audio normalizer (native, ffmpeg)", func(c *Config) *string { return &c.Normalizer })
	num("channels", "capture channels", func(c *Config) *int { return &c.Channels })
	num("sampling-rate", "sampling rate (Hz)", func(c *Config) *int { return &c.SAMPLING_RATE })
	num("rate", "deprecated: rate (Hz), use -sampling-rate", func(c *Config) *int { return &c.SAMPLING_RATE })
	num("sampling-rate-depth", "sampling depth (bits)", func(c *Config) *int { return &c.SAMPLING_RATE_DEPTH })
	num("bit-rate", "archive bit rate (kbps)", func(c *Config) *int { return &c.BIT_RATE })

	// [Network]
	num("request-timeout", "request timeout seconds", func(c *Config) *int { return &c.RequestTimeout })
	num("max-retry", "max retry attempts", func(c *Config) *int { return &c.MaxRetry })
	bind(fs, fv, "retry-base-delay", "retry base delay seconds (float)", parseFloat, func(c *Config) *float64 { return &c.RetryBaseDelay })
	boolean("enable-http2", "enable HTTP/2", func(c *Config) *bool { return &c.EnableHTTP2 })
	boolean("verify-ssl", "verify TLS certificates", func(c *Config) *bool { return &c.VerifySSL })

	// [Shortcuts and sessions]
	str("hold-key", "push-to-talk hotkey (hold to record)", func(c *Config) *string { return &c.HoldKey })
	str("toggle-key", "toggle hotkey (press to start, press again to stop)", func(c *Config) *string { return &c.ToggleKey })
	num("toggle-debounce-ms", "ignore repeated toggle presses within this window (ms)", func(c *Config) *int { return &c.ToggleDebounceMS })
	num("watchdog-seconds", "force-cancel a session after this many idle seconds", func(c *Config) *int { return &c.WatchdogSeconds })

	// [Enhancement]
	str("llm-base-url", "Ollama base URL for transcript enhancement", func(c *Config) *string { return &c.LLMBaseURL })
	str("llm-model", "Ollama model used for transcript enhancement", func(c *Config) *string { return &c.LLMModel })
	num("llm-min-chars", "skip enhancement for transcripts shorter than this", func(c *Config) *int { return &c.LLMMinChars })
	str("model-dir", "directory for downloaded models", func(c *Config) *string { return &c.ModelDir })

	// [Storage and UI]
	str("settings", "user settings JSON path", func(c *Config) *string { return &c.SettingsPath })
	str("history-db", "history SQLite database path", func(c *Config) *string { return &c.HistoryDB })
	str("indicator", "indicator surface (none, console, websocket)", func(c *Config) *string { return &c.Indicator })
	str("listen", "address for /metrics and /indicator (empty disables)", func(c *Config) *string { return &c.ListenAddr })
	str("cache-dir", "cache directory", func(c *Config) *string { return &c.CacheDir })
	boolean("keep-cache", "keep recorded audio in the cache dir", func(c *Config) *bool { return &c.KeepCache })
	boolean("notification", "enable notifications", func(c *Config) *bool { return &c.Notification })

	// [Debug]
	str("log-level", "log level (debug, info, warn, error)", func(c *Config) *string { return &c.LogLevel })
	boolean("ffmpeg-debug", "enable ffmpeg debug output", func(c *Config) *bool { return &c.FFMPEG_DEBUG })
	boolean("record-debug", "enable record debug output", func(c *Config) *bool { return &c.RECORD_DEBUG })
	boolean("hotkey-debug", "enable hotkey debug output", func(c *Config) *bool { return &c.HOTKEY_DEBUG })
	boolean("upload-debug", "enable upload debug output", func(c *Config) *bool { return &c.UPLOAD_DEBUG })
	boolean("session-debug", "enable session/pipeline debug output", func(c *Config) *bool { return &c.SESSION_DEBUG })

	fs.StringVar(&fv.OutputPath, "output", "", "output txt path for -file mode")
	return fv
}

// ApplyFlags applies the flags that were set, in command-line order.
func ApplyFlags(cfg *Config, fv *FlagValues) {
	for _, apply := range fv.overrides {
		apply(cfg)
	}
}

// AnySet reports whether any config flag was explicitly set by the user.
func (fv *FlagValues) AnySet() bool {
	return len(fv.overrides) > 0
}
