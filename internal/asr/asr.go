// Package asr talks to a whisper-compatible speech-to-text HTTP server.
package asr

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/siddug/wave-sub000/internal/config"
	"github.com/siddug/wave-sub000/internal/jsonpath"
	"github.com/siddug/wave-sub000/internal/logging"
)

// Options are per-call overrides of the configured request fields.
type Options struct {
	Language string
	Prompt   string
}

// Transcript is the decoded server answer. Text is the joined segments when
// the response carries any, otherwise the value at TEXT_PATH.
type Transcript struct {
	Text     string
	Segments []string
	Raw      []byte
}

// RetryExhaustedError is returned once every upload attempt failed.
type RetryExhaustedError struct {
	Attempts     int
	MaxRetry     int
	LastResponse []byte
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("exceeded max retries (%d) after %d attempts: %s", e.MaxRetry, e.Attempts, formatResponse(e.LastResponse))
}

// Client performs ASR uploads.
type Client struct {
	cfg            config.Config
	httpClient     *http.Client
	extraConfigMap map[string]any
	log            logging.Logger
}

// New creates a new ASR client and parses ExtraConfig.
func New(cfg config.Config, httpClient *http.Client) (*Client, error) {
	c := &Client{
		cfg:        cfg,
		httpClient: httpClient,
		log:        logging.NewLogger(context.Background()).WithComponent("upload"),
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second}
	}
	if cfg.ExtraConfig != "" {
		c.extraConfigMap = make(map[string]any)
		if err := json.Unmarshal([]byte(cfg.ExtraConfig), &c.extraConfigMap); err != nil {
			return nil, fmt.Errorf("invalid extra-config JSON: %w", err)
		}
	}
	return c, nil
}

// Transcribe uploads the audio, retrying with exponential backoff, and
// decodes the response.
func (c *Client) Transcribe(ctx context.Context, filePath string, opts Options) (Transcript, error) {
	if c.cfg.APIEndpoint == "" {
		return Transcript{}, fmt.Errorf("API endpoint is empty")
	}

	delay := time.Duration(c.cfg.RetryBaseDelay * float64(time.Second))
	for attempt := 1; ; attempt++ {
		ok, res := c.doUpload(ctx, filePath, opts)
		if ok {
			return c.decode(res), nil
		}
		c.log.Debugf("attempt %d failed: %s", attempt, formatResponse(res))

		if attempt >= c.cfg.MaxRetry {
			return Transcript{}, &RetryExhaustedError{Attempts: attempt, MaxRetry: c.cfg.MaxRetry, LastResponse: res}
		}
		select {
		case <-ctx.Done():
			return Transcript{}, fmt.Errorf("transcribe %s: %w", filepath.Base(filePath), ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *Client) decode(body []byte) Transcript {
	t := Transcript{Raw: body}
	if segs, ok := jsonpath.ExtractSegments(body, c.cfg.SegmentsPath); ok && len(segs) > 0 {
		t.Segments = segs
		t.Text = JoinSegments(segs)
		return t
	}
	t.Text = strings.TrimSpace(jsonpath.ExtractTextFromResponse(body, c.cfg.TEXTPath))
	return t
}

func (c *Client) doUpload(ctx context.Context, filePath string, opts Options) (bool, []byte) {
	c.log.Debugf("uploading %s -> %s", filePath, c.cfg.APIEndpoint)
	f, err := os.Open(filePath)
	if err != nil {
		return false, []byte(fmt.Sprintf("open file error: %v", err))
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return false, []byte(fmt.Sprintf("create form file error: %v", err))
	}
	if _, err := io.Copy(part, f); err != nil {
		return false, []byte(fmt.Sprintf("copy file error: %v", err))
	}
	for k, v := range c.formFields(opts) {
		_ = writer.WriteField(k, v)
	}
	_ = writer.Close()

	start := time.Now()
	status, respBody, err := c.post(ctx, c.cfg.APIEndpoint, writer.FormDataContentType(), body)
	c.log.Debugf("request duration: %v", time.Since(start))
	if err != nil {
		return false, []byte(fmt.Sprintf("request error: %v", err))
	}
	return status == http.StatusOK, respBody
}

// formFields merges configured fields, per-call options and ExtraConfig;
// ExtraConfig wins.
func (c *Client) formFields(opts Options) map[string]string {
	fields := make(map[string]string)
	set := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	set("model", c.cfg.Model)
	set("language", c.cfg.Language)
	set("language", opts.Language)
	set("prompt", c.cfg.Prompt)
	set("prompt", opts.Prompt)
	for k, v := range c.extraConfigMap {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case bool, float64:
			fields[k] = fmt.Sprintf("%v", val)
		default:
			if b, err := json.Marshal(val); err == nil {
				fields[k] = string(b)
			} else {
				fields[k] = fmt.Sprintf("%v", val)
			}
		}
	}
	return fields
}

func (c *Client) post(ctx context.Context, endpoint, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	req.Header.Set("User-Agent", "wave-dictation/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// LoadModel asks the server to switch to the model file at modelPath through
// the whisper.cpp "/load" endpoint next to the inference endpoint.
func (c *Client) LoadModel(ctx context.Context, modelPath string) error {
	endpoint, err := loadEndpoint(c.cfg.APIEndpoint)
	if err != nil {
		return err
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("model", modelPath)
	_ = writer.Close()

	status, res, err := c.post(ctx, endpoint, writer.FormDataContentType(), body)
	if err != nil {
		return fmt.Errorf("load model %s: %w", modelPath, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("load model %s: status %d: %s", modelPath, status, formatResponse(res))
	}
	c.log.Infof("speech model loaded: %s", modelPath)
	return nil
}

func loadEndpoint(apiEndpoint string) (string, error) {
	u, err := url.Parse(apiEndpoint)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid API endpoint %q", apiEndpoint)
	}
	u.Path = path.Join(path.Dir(u.Path), "load")
	u.RawQuery = ""
	return u.String(), nil
}

func formatResponse(b []byte) string {
	if len(b) == 0 {
		return "<empty>"
	}
	const maxText = 1000
	const maxBin = 256

	if utf8.Valid(b) {
		s := string(b)
		if len(s) > maxText {
			return fmt.Sprintf("%s... (truncated, total %d bytes)", s[:maxText], len(b))
		}
		return s
	}

	if len(b) > maxBin {
		return fmt.Sprintf("<binary %d bytes, prefix hex: %s...>", len(b), hex.EncodeToString(b[:maxBin]))
	}
	return fmt.Sprintf("<binary %d bytes, hex: %s>", len(b), hex.EncodeToString(b))
}
