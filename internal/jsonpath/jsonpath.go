// Package jsonpath reads values out of speech server responses using dotted
// paths such as "results[0].alternatives[0].transcript".
package jsonpath

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExtractTextFromResponse returns the string at textPath. When the path is
// empty or misses, it falls back to a top-level "text" field and then to the
// first non-empty top-level string.
func ExtractTextFromResponse(body []byte, textPath string) string {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return ""
	}
	if v, ok := ExtractByPath(root, textPath); ok {
		return v
	}

	m, ok := root.(map[string]any)
	if !ok {
		return ""
	}
	if s, ok := scalarString(m["text"]); ok {
		return s
	}
	for _, val := range m {
		if s, ok := val.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ExtractSegments returns the text of every element of the array at path.
// Elements may be strings or objects carrying a "text" field; anything else
// is skipped. ok is false when the path does not lead to an array.
func ExtractSegments(body []byte, path string) ([]string, bool) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, false
	}
	v, ok := Lookup(root, path)
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if obj, isObj := el.(map[string]any); isObj {
			el = obj["text"]
		}
		if s, ok := scalarString(el); ok {
			out = append(out, s)
		}
	}
	return out, true
}

// ExtractByPath resolves path and renders the value when it is a scalar.
func ExtractByPath(root any, path string) (string, bool) {
	v, ok := Lookup(root, path)
	if !ok {
		return "", false
	}
	return scalarString(v)
}

// Lookup walks a decoded JSON value along a dot-separated path.
func Lookup(root any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	cur := root
	for _, part := range strings.Split(path, ".") {
		key, idxs, err := ParseKeyAndIndexes(part)
		if err != nil {
			return nil, false
		}
		if key != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			if cur, ok = m[key]; !ok {
				return nil, false
			}
		}
		for _, idx := range idxs {
			arr, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
		}
	}
	return cur, true
}

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10), true
		}
		return strconv.FormatFloat(s, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	}
	return "", false
}

// ParseKeyAndIndexes splits a token like "foo[0][1]", "[0]" or "bar" into its
// key and indexes.
func ParseKeyAndIndexes(token string) (string, []int, error) {
	if token == "" {
		return "", nil, fmt.Errorf("empty token")
	}
	key, rest, found := strings.Cut(token, "[")
	if !found {
		return token, nil, nil
	}
	rest = "[" + rest
	var idxs []int
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("invalid index syntax in %s", token)
		}
		end := strings.IndexByte(rest, ']')
		if end == -1 {
			return "", nil, fmt.Errorf("missing closing ] in %s", token)
		}
		num := rest[1:end]
		if num == "" {
			return "", nil, fmt.Errorf("empty index in %s", token)
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return "", nil, fmt.Errorf("invalid index '%s' in %s", num, token)
		}
		idxs = append(idxs, n)
		rest = rest[end+1:]
	}
	return key, idxs, nil
}
