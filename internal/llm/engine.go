// Package llm runs transcript clean-up prompts against a local Ollama server.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ollamasdk "github.com/rozoomcool/go-ollama-sdk"

	"github.com/siddug/wave-sub000/internal/logging"
)

// ErrUnavailable means no language model is configured or loaded.
var ErrUnavailable = errors.New("llm: model unavailable")

// Handle identifies a loaded model.
type Handle struct {
	Model    string
	LoadedAt time.Time
}

// Options bound a single generation.
type Options struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Engine is a local inference backend.
type Engine interface {
	Load(ctx context.Context, name string) (Handle, error)
	Generate(ctx context.Context, h Handle, prompt string, opts Options) (string, error)
	Dispose(ctx context.Context, h Handle) error
}

// OllamaEngine implements Engine on top of an Ollama server.
type OllamaEngine struct {
	baseURL    string
	apiClient  *ollamasdk.OllamaClient
	httpClient *http.Client
	keepAlive  string
	log        logging.Logger
}

// NewOllamaEngine talks to the Ollama server at baseURL. A nil client gets a
// two-minute timeout.
func NewOllamaEngine(baseURL string, httpClient *http.Client) *OllamaEngine {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &OllamaEngine{
		baseURL:    baseURL,
		apiClient:  ollamasdk.NewClient(baseURL),
		httpClient: httpClient,
		keepAlive:  "30m",
		log:        logging.NewLogger(context.Background()).WithComponent("llm"),
	}
}

// Load warms the model with a one-line chat so the first enhancement does not
// pay the load cost.
func (e *OllamaEngine) Load(ctx context.Context, name string) (Handle, error) {
	name = strings.TrimSpace(name)
	if name == "" || e.baseURL == "" {
		return Handle{}, ErrUnavailable
	}

	type chatResult struct {
		text string
		err  error
	}
	done := make(chan chatResult, 1)
	go func() {
		text, err := e.apiClient.Chat(name, []ollamasdk.ChatMessage{
			{Role: "user", Content: "Reply with OK."},
		})
		done <- chatResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return Handle{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return Handle{}, fmt.Errorf("warm up %s: %w", name, r.err)
		}
		e.log.Debugf("warm-up reply from %s: %q", name, strings.TrimSpace(r.text))
	}
	return Handle{Model: name, LoadedAt: time.Now()}, nil
}

type generateRequest struct {
	Model     string          `json:"model"`
	Prompt    string          `json:"prompt,omitempty"`
	Stream    bool            `json:"stream"`
	KeepAlive any             `json:"keep_alive,omitempty"` // nil omits, 0 evicts
	Options   *generateOption `json:"options,omitempty"`
}

type generateOption struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate runs a single non-streaming completion.
func (e *OllamaEngine) Generate(ctx context.Context, h Handle, prompt string, opts Options) (string, error) {
	if h.Model == "" {
		return "", ErrUnavailable
	}
	start := time.Now()
	res, err := e.post(ctx, generateRequest{
		Model:     h.Model,
		Prompt:    prompt,
		KeepAlive: e.keepAlive,
		Options: &generateOption{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
			TopP:        opts.TopP,
		},
	})
	if err != nil {
		return "", err
	}
	e.log.Debugf("generate %s took %v (%d chars)", h.Model, time.Since(start), len(res.Response))
	return strings.TrimSpace(res.Response), nil
}

// Dispose asks Ollama to evict the model right away.
func (e *OllamaEngine) Dispose(ctx context.Context, h Handle) error {
	if h.Model == "" {
		return nil
	}
	_, err := e.post(ctx, generateRequest{Model: h.Model, KeepAlive: 0})
	return err
}

func (e *OllamaEngine) post(ctx context.Context, body generateRequest) (generateResponse, error) {
	var out generateResponse
	payload, err := json.Marshal(body)
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("ollama generate: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("ollama generate status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("ollama generate: decode: %w", err)
	}
	if out.Error != "" {
		return out, fmt.Errorf("ollama generate: %s", out.Error)
	}
	return out, nil
}
