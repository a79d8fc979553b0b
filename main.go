package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/siddug/wave-sub000/internal/app"
	"github.com/siddug/wave-sub000/internal/config"
	"github.com/siddug/wave-sub000/internal/logging"
)

func usage() {
	programName := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, `Usage: %s [options]

Records speech while a hotkey is held (or toggled), transcribes it through an
ASR endpoint, optionally polishes it with a local LLM, and pastes the result at
the cursor.

Options:
[Modes]
  -config <string>
        config JSON (default ./config.json; created with defaults and exit if missing)
  -file <string>
        transcribe an existing audio file instead of recording
  -output <string>
        txt path for -file mode (default: next to the input)
  -history
        list dictation history
  -page <int>, -limit <int>
        history paging (default 1, 20)
  -delete <string>
        delete one history entry by id
  -download-model <url> [-model-name <string>]
        download a model file into the model dir
  -list-models
        list downloaded models
  -delete-model <string>
        delete a downloaded model

[ASR endpoint]
  -api-endpoint, -token, -model, -asr-model-path, -language, -prompt
  -text-path, -segments-path, -extra-config

[Audio]
  -channels, -sampling-rate, -sampling-rate-depth, -normalizer
  -codecs, -container, -bit-rate (archive encoding)

[Network]
  -request-timeout, -max-retry, -retry-base-delay, -enable-http2, -verify-ssl

[Hotkeys]
  -hold-key <string>
        push-to-talk hotkey, e.g. "ctrl+alt"
  -toggle-key <string>
        press once to start, again to stop, e.g. "alt+q"
  -toggle-debounce-ms, -watchdog-seconds

[Enhancement]
  -llm-base-url, -llm-model, -llm-min-chars, -model-dir

[Storage and UI]
  -settings, -history-db, -cache-dir, -keep-cache
  -indicator (none, console, websocket), -listen, -notification

[Debug]
  -log-level, -ffmpeg-debug, -record-debug, -hotkey-debug, -upload-debug, -session-debug

Examples:
  %s -config config.json
  %s -file meeting.m4a -output meeting.txt
  %s -history -page 2

Notes:
- Precedence: flags > environment (.env) > config file > defaults
- Temp files starting with RecordTemp_ are cleaned up at startup
`, programName, programName, programName, programName)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[main] failed to read .env: %v\n", err)
	}

	fset := flag.NewFlagSet(filepath.Base(os.Args[0]), flag.ExitOnError)
	fset.Usage = usage
	fv := config.BindFlags(fset)

	configPath := fset.String("config", "", "path to config JSON")
	filePath := fset.String("file", "", "path to existing audio file to transcribe")
	showHistory := fset.Bool("history", false, "list dictation history")
	page := fset.Int("page", 1, "history page")
	limit := fset.Int("limit", 20, "history page size")
	deleteID := fset.String("delete", "", "history entry id to delete")
	downloadURL := fset.String("download-model", "", "model URL to download")
	modelName := fset.String("model-name", "", "file name for -download-model")
	listModels := fset.Bool("list-models", false, "list downloaded models")
	deleteModel := fset.String("delete-model", "", "downloaded model to delete")

	_ = fset.Parse(os.Args[1:])

	cfg, ok := loadConfig(*configPath, fv, fset.NFlag() > 0)
	if !ok {
		return
	}

	logging.Configure(logging.Options{
		Level:           cfg.LogLevel,
		Output:          os.Stderr,
		DebugComponents: cfg.DebugComponents(),
	})
	config.InitCacheDir(&cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case *downloadURL != "":
		err = app.RunModelDownload(ctx, cfg, *downloadURL, *modelName)
	case *listModels:
		err = app.RunModelList(cfg, os.Stdout)
	case *deleteModel != "":
		err = app.RunModelDelete(cfg, *deleteModel)
	case *showHistory || *deleteID != "":
		err = app.RunHistory(ctx, cfg, os.Stdout, *page, *limit, *deleteID)
	case *filePath != "":
		err = app.RunFileMode(ctx, cfg, *filePath, fv.OutputPath)
	default:
		err = app.RunRecordMode(ctx, cfg)
	}
	if err != nil {
		logging.NewLogger(ctx).WithComponent("main").Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig resolves the effective config. It returns false when the
// process should exit without running, e.g. after writing a default file.
func loadConfig(path string, fv *config.FlagValues, anyFlag bool) (config.Config, bool) {
	explicit := path != ""
	if !explicit {
		path = "config.json"
	}

	cfg := config.DefaultConfig()
	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		loaded, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[main] failed to load config '%s': %v\n", path, err)
			os.Exit(1)
		}
		cfg = loaded
	case explicit:
		fmt.Fprintf(os.Stderr, "[main] config '%s': %v\n", path, statErr)
		os.Exit(1)
	case errors.Is(statErr, fs.ErrNotExist) && !anyFlag:
		if err := config.SaveDefault(path); err != nil {
			fmt.Fprintf(os.Stderr, "[main] failed to write default config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("[main] default config created at %s. Please edit it and re-run.\n", path)
		return cfg, false
	}

	config.ApplyEnv(&cfg)
	config.ApplyFlags(&cfg, fv)
	if err := config.Validate(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "[main] invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg, true
}
