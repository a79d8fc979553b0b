// Package app wires the components into the runnable modes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/siddug/wave-sub000/internal/asr"
	"github.com/siddug/wave-sub000/internal/audio"
	"github.com/siddug/wave-sub000/internal/audio/ffmpeg"
	"github.com/siddug/wave-sub000/internal/clipboard"
	"github.com/siddug/wave-sub000/internal/config"
	"github.com/siddug/wave-sub000/internal/dispatch"
	"github.com/siddug/wave-sub000/internal/history"
	"github.com/siddug/wave-sub000/internal/hotkey"
	"github.com/siddug/wave-sub000/internal/indicator"
	"github.com/siddug/wave-sub000/internal/llm"
	"github.com/siddug/wave-sub000/internal/logging"
	"github.com/siddug/wave-sub000/internal/metrics"
	"github.com/siddug/wave-sub000/internal/notify"
	"github.com/siddug/wave-sub000/internal/pipeline"
	"github.com/siddug/wave-sub000/internal/record"
	"github.com/siddug/wave-sub000/internal/session"
	"github.com/siddug/wave-sub000/internal/settings"
	"github.com/siddug/wave-sub000/internal/shortcut"
)

// shutdownGrace bounds how long an in-flight session may finish on exit.
const shutdownGrace = 10 * time.Second

// RunRecordMode listens for shortcuts and runs dictation sessions until ctx
// is done.
func RunRecordMode(ctx context.Context, cfg config.Config) error {
	log := logging.NewLogger(ctx).WithComponent("main")
	tempDir := config.TempDir(&cfg)
	cleanupOldTempFiles(tempDir)

	st, err := openSettings(cfg)
	if err != nil {
		return err
	}
	go func() {
		if err := st.Watch(ctx); err != nil {
			log.Warnf("settings hot reload disabled: %v", err)
		}
	}()

	hist, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer hist.Close()

	pipe, release, err := buildPipeline(ctx, cfg, st, tempDir)
	if err != nil {
		return err
	}
	defer release()

	bus := session.NewBus(log)
	defer bus.Close()
	machine := session.NewMachine(session.Config{
		Capture: record.New(record.Options{
			Dir:        tempDir,
			Channels:   cfg.Channels,
			SampleRate: cfg.SAMPLING_RATE,
		}),
		Processor:  pipe,
		Dispatcher: buildDispatcher(cfg, hist, st),
		Bus:        bus,
		Timeout:    cfg.Watchdog(),
		Discard:    func(p string) { os.Remove(p) },
	})

	surface, hub := buildSurface(cfg)
	if surface != nil {
		defer indicator.NewPresenter(surface).Attach(bus)()
	}
	if cfg.ListenAddr != "" {
		go serve(ctx, cfg.ListenAddr, newMux(hub))
	}

	scfg, err := shortcutConfig(cfg, st)
	if err != nil {
		return err
	}
	matcher := shortcut.NewMatcher(scfg, machine.Phase)
	defer st.Subscribe(func(key string) {
		if key != settings.KeyHoldShortcut && key != settings.KeyToggleShortcut {
			return
		}
		next, err := shortcutConfig(cfg, st)
		if err != nil {
			log.Warnf("ignoring shortcut change: %v", err)
			return
		}
		matcher.SetConfig(next)
		log.Infof("shortcuts updated: hold=%q toggle=%q", st.HoldShortcut(), st.ToggleShortcut())
	})()

	src, err := hotkey.Open(hotkey.Options{
		Debug:   cfg.HOTKEY_DEBUG,
		Swallow: func(ev shortcut.KeyEvent) bool { return swallows(matcher.Config(), ev) },
	})
	if err != nil {
		return fmt.Errorf("open key source: %w", err)
	}
	defer src.Close()

	go machine.Run(ctx, session.DefaultTick)

	log.Infof("ready. hold %q or press %q to dictate", st.HoldShortcut(), st.ToggleShortcut())
	err = hotkey.Pump(ctx, src, func(ev shortcut.KeyEvent) {
		if t := matcher.Feed(ev); t != shortcut.None {
			_ = machine.HandleTrigger(ctx, t)
		}
	})
	waitFor(machine, shutdownGrace, log)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func waitFor(m *session.Machine, grace time.Duration, log logging.Logger) {
	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		log.Warnf("in-flight session did not finish within %s", grace)
	}
}

func openSettings(cfg config.Config) (*settings.Store, error) {
	return settings.Open(cfg.SettingsPath, map[string]any{
		settings.KeyHoldShortcut:   cfg.HoldKey,
		settings.KeyToggleShortcut: cfg.ToggleKey,
		settings.KeyLanguage:       cfg.Language,
	})
}

// buildPipeline assembles normalize, transcribe and enhance. The returned
// function unloads the LLM.
func buildPipeline(ctx context.Context, cfg config.Config, st pipeline.Settings, tempDir string) (*pipeline.Pipeline, func(), error) {
	log := logging.NewLogger(ctx).WithComponent("main")

	asrClient, err := asr.New(cfg, newHTTPClient(cfg))
	if err != nil {
		return nil, nil, err
	}
	if cfg.ASRModelPath != "" {
		if err := asrClient.LoadModel(ctx, cfg.ASRModelPath); err != nil {
			log.Warnf("loading ASR model %s failed, using the server's current model: %v", cfg.ASRModelPath, err)
		}
	}

	var normalizer pipeline.Normalizer = audio.Native{Dir: tempDir}
	if strings.EqualFold(cfg.Normalizer, "ffmpeg") {
		normalizer = ffmpeg.Normalizer{Dir: tempDir}
	}

	pcfg := pipeline.Config{
		Normalizer:  normalizer,
		Transcriber: asrClient,
		Settings:    st,
		SampleRate:  16000,
		MinChars:    cfg.LLMMinChars,
	}
	release := func() {}
	if cfg.LLMBaseURL != "" && cfg.LLMModel != "" {
		engine := llm.NewOllamaEngine(cfg.LLMBaseURL, nil)
		mgr := llm.NewManager(engine)
		go func() {
			if _, err := mgr.Load(ctx, cfg.LLMModel); err != nil {
				log.Warnf("enhancement model %s not loaded, transcripts pass through: %v", cfg.LLMModel, err)
			}
		}()
		pcfg.Enhancer = llm.NewEnhancer(engine, mgr)
		release = func() {
			uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mgr.Unload(uctx); err != nil {
				log.Debugf("unload %s: %v", cfg.LLMModel, err)
			}
		}
	}
	return pipeline.New(pcfg), release, nil
}

func buildDispatcher(cfg config.Config, hist dispatch.History, st dispatch.Settings) *dispatch.Dispatcher {
	return dispatch.New(dispatch.Config{
		Clipboard:       clipboard.New(),
		History:         hist,
		Settings:        st,
		Archiver:        newArchiver(cfg),
		Notifier:        notify.New(cfg.Notification),
		FailureNotifier: notify.New(cfg.Notification || cfg.RequestFailedNotification),
	})
}

// newArchiver keeps recordings in the cache dir, transcoded to the
// configured container, when KEEP_CACHE is on.
func newArchiver(cfg config.Config) *dispatch.FileArchiver {
	if !cfg.KeepCache || cfg.CacheDir == "" {
		return &dispatch.FileArchiver{}
	}
	a := &dispatch.FileArchiver{Dir: cfg.CacheDir, Keep: true}
	if ext := config.ContainerExt(cfg.CONTAINER); ext != "wav" {
		opts := ffmpeg.OptionsFromConfig(cfg)
		a.Ext = ext
		a.Convert = func(ctx context.Context, in, out string) error {
			return ffmpeg.Convert(ctx, opts, in, out)
		}
	}
	return a
}

func buildSurface(cfg config.Config) (indicator.Surface, *indicator.Hub) {
	switch strings.ToLower(cfg.Indicator) {
	case "console":
		return indicator.NewLazy(func() (indicator.Surface, error) {
			return indicator.NewConsole(os.Stderr), nil
		}), nil
	case "websocket":
		hub := indicator.NewHub()
		return hub, hub
	}
	return nil, nil
}

// shortcutConfig reads the shortcut definitions, preferring settings over
// the static config.
func shortcutConfig(cfg config.Config, st *settings.Store) (shortcut.Config, error) {
	out := shortcut.Config{Debounce: cfg.ToggleDebounce()}
	if spec := strings.TrimSpace(st.HoldShortcut()); spec != "" {
		d, err := shortcut.HoldDefinition(spec)
		if err != nil {
			return out, fmt.Errorf("hold shortcut: %w", err)
		}
		out.Hold = &d
	}
	if spec := strings.TrimSpace(st.ToggleShortcut()); spec != "" {
		d, err := shortcut.ToggleDefinition(spec)
		if err != nil {
			return out, fmt.Errorf("toggle shortcut: %w", err)
		}
		out.Toggle = &d
	}
	if out.Hold == nil && out.Toggle == nil {
		return out, errors.New("no shortcut configured")
	}
	return out, nil
}

// swallows hides shortcut key downs from other applications. Modifier-only
// hold keys pass through.
func swallows(c shortcut.Config, ev shortcut.KeyEvent) bool {
	if c.Toggle != nil && c.Toggle.Start.Matches(ev) {
		return true
	}
	return c.Hold != nil && c.Hold.Start.Kind == shortcut.KeyDown && c.Hold.Start.Matches(ev)
}

func newMux(hub *indicator.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if hub != nil {
		mux.Handle("/indicator", hub)
	}
	return mux
}

func serve(ctx context.Context, addr string, h http.Handler) {
	log := logging.NewLogger(ctx).WithComponent("http")
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()
	log.Infof("serving /metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("http server: %v", err)
	}
}
