// Package pipeline turns a finished recording into text: normalize, transcribe,
// then optionally enhance.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/siddug/wave-sub000/internal/asr"
	"github.com/siddug/wave-sub000/internal/llm"
	"github.com/siddug/wave-sub000/internal/logging"
	"github.com/siddug/wave-sub000/internal/metrics"
)

// Stage names a pipeline step.
type Stage string

const (
	StageNormalize  Stage = "normalize"
	StageTranscribe Stage = "transcribe"
	StageEnhance    Stage = "enhance"
)

// Fallback reasons reported when enhancement is skipped.
const (
	FallbackDisabled    = "disabled"
	FallbackUnavailable = "unavailable"
	FallbackTooShort    = "too_short"
	FallbackError       = "error"
	FallbackEmpty       = "empty"
)

// Normalizer converts a recording to mono PCM at the given rate.
type Normalizer interface {
	ToMonoPCM(ctx context.Context, inputPath string, sampleRate int) (string, error)
}

// Transcriber turns normalized audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string, opts asr.Options) (asr.Transcript, error)
}

// Enhancer rewrites a transcript with a language model.
type Enhancer interface {
	Enhance(ctx context.Context, prompt string, opts llm.Options) (string, error)
}

// Settings are read at the start of every run so edits apply to the next
// session.
type Settings interface {
	EnhancementEnabled() bool
	PromptTemplate() string
	Language() string
}

// Result carries both the raw transcript and the text chosen for display.
type Result struct {
	Success        bool
	OriginalText   string
	Text           string
	Segments       []string
	Processed      bool
	FallbackReason string
	Stage          Stage
	Err            error
}

// Config wires the pipeline stages.
type Config struct {
	Normalizer  Normalizer
	Transcriber Transcriber
	Enhancer    Enhancer // nil disables enhancement
	Settings    Settings // nil enables enhancement with DefaultPrompt
	SampleRate  int
	MinChars    int
}

// Pipeline runs normalize, transcribe and enhance for one recording.
type Pipeline struct {
	cfg Config
	log logging.Logger
}

// New creates a pipeline. SampleRate defaults to 16000.
func New(cfg Config) *Pipeline {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Pipeline{cfg: cfg, log: logging.NewLogger(context.Background()).WithComponent("pipeline")}
}

// Process runs every stage on audioPath. progress, when set, is called as
// each stage begins. Errors never escape as panics or returns; they are
// folded into the Result.
func (p *Pipeline) Process(ctx context.Context, audioPath string, progress func(Stage)) Result {
	report := func(s Stage) {
		if progress != nil {
			progress(s)
		}
	}

	report(StageNormalize)
	start := time.Now()
	pcm, err := p.cfg.Normalizer.ToMonoPCM(ctx, audioPath, p.cfg.SampleRate)
	observe(StageNormalize, start)
	if err != nil {
		return p.fail(StageNormalize, err)
	}
	if pcm != audioPath {
		defer os.Remove(pcm)
	}

	report(StageTranscribe)
	start = time.Now()
	tr, err := p.cfg.Transcriber.Transcribe(ctx, pcm, asr.Options{Language: p.language()})
	observe(StageTranscribe, start)
	if err != nil {
		return p.fail(StageTranscribe, err)
	}

	original := strings.TrimSpace(tr.Text)
	res := Result{
		Success:      true,
		OriginalText: original,
		Text:         original,
		Segments:     tr.Segments,
		Stage:        StageTranscribe,
	}

	enhanced, reason := p.enhance(ctx, original, report)
	if reason != "" {
		res.FallbackReason = reason
		metrics.EnhancementFallback.WithLabelValues(reason).Inc()
		return res
	}
	res.Text = enhanced
	res.Processed = true
	res.Stage = StageEnhance
	return res
}

func (p *Pipeline) fail(stage Stage, err error) Result {
	p.log.Errorf("%s failed: %v", stage, err)
	return Result{Stage: stage, Err: fmt.Errorf("%s: %w", stage, err)}
}

// enhance returns the enhanced text, or a non-empty fallback reason.
func (p *Pipeline) enhance(ctx context.Context, transcript string, report func(Stage)) (string, string) {
	if p.cfg.Settings != nil && !p.cfg.Settings.EnhancementEnabled() {
		return "", FallbackDisabled
	}
	if p.cfg.Enhancer == nil {
		return "", FallbackUnavailable
	}
	if len([]rune(transcript)) < p.cfg.MinChars || transcript == "" {
		return "", FallbackTooShort
	}

	report(StageEnhance)
	start := time.Now()
	out, err := p.safeEnhance(ctx, BuildPrompt(p.template(), transcript), llm.Options{
		Temperature: Temperature,
		TopP:        TopP,
		MaxTokens:   MaxTokensFor(transcript),
	})
	observe(StageEnhance, start)
	switch {
	case errors.Is(err, llm.ErrUnavailable):
		p.log.Debugf("enhancement skipped: %v", err)
		return "", FallbackUnavailable
	case err != nil:
		p.log.Warnf("enhancement failed, keeping original transcript: %v", err)
		return "", FallbackError
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", FallbackEmpty
	}
	return out, ""
}

func (p *Pipeline) safeEnhance(ctx context.Context, prompt string, opts llm.Options) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("enhancer panic: %v", r)
		}
	}()
	return p.cfg.Enhancer.Enhance(ctx, prompt, opts)
}

func (p *Pipeline) template() string {
	if p.cfg.Settings == nil {
		return DefaultPrompt
	}
	return p.cfg.Settings.PromptTemplate()
}

func (p *Pipeline) language() string {
	if p.cfg.Settings == nil {
		return ""
	}
	return p.cfg.Settings.Language()
}

func observe(stage Stage, start time.Time) {
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}

// JoinSegments is the segment concatenation rule used for transcripts.
func JoinSegments(segments []string) string {
	return asr.JoinSegments(segments)
}
