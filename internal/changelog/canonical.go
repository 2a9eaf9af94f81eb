package changelog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

var sensitivePayloadPatterns = []string{
	"password", "passphrase", "secret", "token",
	"credential", "api_key", "connection_string", "private_key",
	"master_key",
}

// sanitizePayload drops sensitive keys from a JSON payload and rewrites it
// in canonical form.
func sanitizePayload(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode payload json: %w", err)
	}
	out, err := canonicalJSONFromDecoded(sanitizeValue(decoded))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

func sanitizeValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		clean := make(map[string]any, len(typed))
		for key, nested := range typed {
			if isSensitiveKey(key) {
				continue
			}
			clean[key] = sanitizeValue(nested)
		}
		return clean
	case []any:
		out := make([]any, 0, len(typed))
		for _, nested := range typed {
			out = append(out, sanitizeValue(nested))
		}
		return out
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for _, pattern := range sensitivePayloadPatterns {
		if strings.Contains(normalized, pattern) {
			return true
		}
	}
	return false
}

func canonicalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("canonical json: value is nil")
	}

	root := reflect.ValueOf(v)
	for root.Kind() == reflect.Pointer {
		if root.IsNil() {
			return nil, fmt.Errorf("canonical json: nil pointer")
		}
		root = root.Elem()
	}
	if root.Kind() == reflect.Map {
		return nil, fmt.Errorf("canonical json: map input is not allowed")
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical json: marshal: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("canonical json: unmarshal: %w", err)
	}
	return canonicalJSONFromDecoded(decoded)
}

func canonicalJSONFromDecoded(value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeCanonicalJSON(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonicalJSON(buf *bytes.Buffer, value any) error {
	switch typed := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, err := json.Marshal(key)
			if err != nil {
				return fmt.Errorf("canonical json: marshal key: %w", err)
			}
			buf.Write(keyBytes)
			buf.WriteByte(':')
			if err := encodeCanonicalJSON(buf, typed[key]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, elem := range typed {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonicalJSON(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		raw, err := json.Marshal(typed)
		if err != nil {
			return fmt.Errorf("canonical json: marshal scalar: %w", err)
		}
		buf.Write(raw)
		return nil
	}
}
