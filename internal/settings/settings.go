// Package settings is the user-editable key/value store (shortcuts, output
// toggles, enhancement prompt) backed by a JSON file.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/siddug/wave-sub000/internal/logging"
)

const (
	KeyHoldShortcut       = "shortcuts.hold"
	KeyToggleShortcut     = "shortcuts.toggle"
	KeyEnhancementEnabled = "enhancement.enabled"
	KeyEnhancementPrompt  = "enhancement.prompt"
	KeyOutputClipboard    = "output.clipboard"
	KeyOutputPaste        = "output.paste"
	KeyLanguage           = "language"
)

// Store is a JSON-file key-value store with change subscribers.
type Store struct {
	path     string
	defaults map[string]any
	log      logging.Logger

	mu     sync.RWMutex
	values map[string]any
	subs   map[int]func(key string)
	nextID int
}

// Open loads path; a missing file is an empty store. defaults answer keys
// the file does not set.
func Open(path string, defaults map[string]any) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("settings path %q: %w", path, err)
	}
	s := &Store{
		path:     abs,
		defaults: defaults,
		values:   map[string]any{},
		subs:     map[int]func(string){},
		log:      logging.NewLogger(context.Background()).WithComponent("settings"),
	}
	values, err := s.read()
	if err != nil {
		return nil, err
	}
	s.values = values
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) read() (map[string]any, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	values := map[string]any{}
	if len(strings.TrimSpace(string(b))) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(b, &values); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", s.path, err)
	}
	return values, nil
}

// Get returns the stored value, then the default, then def.
func (s *Store) Get(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	if v, ok := s.defaults[key]; ok {
		return v
	}
	return def
}

// String returns key as a string, or def.
func (s *Store) String(key, def string) string {
	switch v := s.Get(key, def).(type) {
	case string:
		return v
	case nil:
		return def
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns key as a bool, or def.
func (s *Store) Bool(key string, def bool) bool {
	switch v := s.Get(key, def).(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	case float64:
		return v != 0
	}
	return def
}

// Set stores value, rewrites the file and notifies subscribers when the value
// changed.
func (s *Store) Set(key string, value any) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("settings: empty key")
	}
	// normalize through JSON so stored values look like reloaded ones
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings: encode %s: %w", key, err)
	}
	var norm any
	if err := json.Unmarshal(b, &norm); err != nil {
		return err
	}

	s.mu.Lock()
	old, existed := s.values[key]
	if existed && reflect.DeepEqual(old, norm) {
		s.mu.Unlock()
		return nil
	}
	s.values[key] = norm
	err = s.writeLocked()
	if err != nil {
		if existed {
			s.values[key] = old
		} else {
			delete(s.values, key)
		}
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify([]string{key})
	return nil
}

func (s *Store) writeLocked() error {
	b, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.json")
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Subscribe registers fn for changed keys and returns a cancel func.
func (s *Store) Subscribe(fn func(key string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(keys []string) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(string), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.mu.RUnlock()

	for _, key := range keys {
		for _, fn := range fns {
			fn(key)
		}
	}
}

// Reload re-reads the file and notifies subscribers of every key whose value
// changed. A file that fails to parse leaves the current values in place.
func (s *Store) Reload() error {
	values, err := s.read()
	if err != nil {
		return err
	}
	s.mu.Lock()
	changed := diffKeys(s.values, values)
	s.values = values
	s.mu.Unlock()
	if len(changed) > 0 {
		s.log.Infof("settings reloaded, changed: %s", strings.Join(changed, ", "))
		s.notify(changed)
	}
	return nil
}

func diffKeys(a, b map[string]any) []string {
	var out []string
	for k, v := range a {
		if w, ok := b[k]; !ok || !reflect.DeepEqual(v, w) {
			out = append(out, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Store) HoldShortcut() string   { return s.String(KeyHoldShortcut, "") }
func (s *Store) ToggleShortcut() string { return s.String(KeyToggleShortcut, "") }
func (s *Store) PromptTemplate() string { return s.String(KeyEnhancementPrompt, "") }
func (s *Store) Language() string       { return s.String(KeyLanguage, "") }

func (s *Store) EnhancementEnabled() bool { return s.Bool(KeyEnhancementEnabled, true) }
func (s *Store) ClipboardEnabled() bool   { return s.Bool(KeyOutputClipboard, false) }
func (s *Store) PasteEnabled() bool       { return s.Bool(KeyOutputPaste, true) }
