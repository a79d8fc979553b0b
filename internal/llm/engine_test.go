package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	mu   sync.Mutex
	reqs []map[string]any
}

func (r *recorded) add(m map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, m)
}

func (r *recorded) last() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reqs[len(r.reqs)-1]
}

func fakeOllama(t *testing.T, rec *recorded, reply string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["_path"] = r.URL.Path
		rec.add(body)
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": reply, "done": true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateSendsOptions(t *testing.T) {
	rec := &recorded{}
	srv := fakeOllama(t, rec, "  Hello, world.  ", http.StatusOK)
	e := NewOllamaEngine(srv.URL+"/", nil)

	out, err := e.Generate(context.Background(), Handle{Model: "llama3.2"}, "fix: hello world", Options{Temperature: 0.1, MaxTokens: 64, TopP: 0.9})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world.", out)

	got := rec.last()
	assert.Equal(t, "/api/generate", got["_path"])
	assert.Equal(t, "llama3.2", got["model"])
	assert.Equal(t, "fix: hello world", got["prompt"])
	assert.Equal(t, false, got["stream"])
	opts := got["options"].(map[string]any)
	assert.InDelta(t, 0.1, opts["temperature"], 1e-9)
	assert.EqualValues(t, 64, opts["num_predict"])
	assert.InDelta(t, 0.9, opts["top_p"], 1e-9)
}

func TestGenerateErrors(t *testing.T) {
	rec := &recorded{}
	srv := fakeOllama(t, rec, "", http.StatusNotFound)
	e := NewOllamaEngine(srv.URL, nil)

	_, err := e.Generate(context.Background(), Handle{Model: "missing"}, "p", Options{})
	assert.ErrorContains(t, err, "404")

	_, err = e.Generate(context.Background(), Handle{}, "p", Options{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDisposeSendsZeroKeepAlive(t *testing.T) {
	rec := &recorded{}
	srv := fakeOllama(t, rec, "", http.StatusOK)
	e := NewOllamaEngine(srv.URL, nil)

	require.NoError(t, e.Dispose(context.Background(), Handle{Model: "llama3.2"}))
	got := rec.last()
	assert.EqualValues(t, 0, got["keep_alive"])
	assert.NotContains(t, got, "prompt")

	require.NoError(t, e.Dispose(context.Background(), Handle{}))
}

func TestLoadUnavailable(t *testing.T) {
	_, err := NewOllamaEngine("http://127.0.0.1:1", nil).Load(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = NewOllamaEngine("", nil).Load(context.Background(), "llama3.2")
	assert.ErrorIs(t, err, ErrUnavailable)
}

type stubEngine struct {
	out string
	err error
}

func (s stubEngine) Load(_ context.Context, name string) (Handle, error) {
	return Handle{Model: name}, nil
}

func (s stubEngine) Generate(_ context.Context, h Handle, prompt string, _ Options) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return h.Model + ":" + s.out, nil
}

func (s stubEngine) Dispose(context.Context, Handle) error { return nil }

func TestEnhancerUsesLoadedModel(t *testing.T) {
	eng := stubEngine{out: "clean"}
	mgr := NewManager(eng)
	enh := NewEnhancer(eng, mgr)

	_, err := enh.Enhance(context.Background(), "p", Options{})
	assert.ErrorIs(t, err, ErrUnavailable, "nothing loaded yet")

	_, err = mgr.Load(context.Background(), "m1")
	require.NoError(t, err)
	out, err := enh.Enhance(context.Background(), "p", Options{})
	require.NoError(t, err)
	assert.Equal(t, "m1:clean", out)

	var nilEnh *Enhancer
	_, err = nilEnh.Enhance(context.Background(), "p", Options{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEnhancerPropagatesEngineError(t *testing.T) {
	eng := stubEngine{err: errors.New("oom")}
	mgr := NewManager(eng)
	_, err := mgr.Load(context.Background(), "m1")
	require.NoError(t, err)
	_, err = NewEnhancer(eng, mgr).Enhance(context.Background(), "p", Options{})
	assert.EqualError(t, err, "oom")
}
