package domain

import (
	"strings"

	"github.com/tidwall/gjson"
)

// RawRecord is one scraped vendor record kept as its original JSON.
// Field access goes through gjson paths so shop adapters can reach nested
// or oddly named keys without decoding into a fixed struct.
type RawRecord struct {
	raw []byte
}

// NewRawRecord wraps JSON bytes. The slice is not copied.
func NewRawRecord(data []byte) RawRecord {
	return RawRecord{raw: data}
}

// RawRecordFromString is a convenience for literals and tests
func RawRecordFromString(s string) RawRecord {
	return RawRecord{raw: []byte(s)}
}

// IsObject reports whether the record is a JSON object
func (r RawRecord) IsObject() bool {
	return len(r.raw) > 0 && gjson.ValidBytes(r.raw) && gjson.ParseBytes(r.raw).IsObject()
}

// Get returns the value at a gjson path
func (r RawRecord) Get(path string) gjson.Result {
	if len(r.raw) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.raw, path)
}

// Has reports whether path exists and is neither null nor a blank string
func (r RawRecord) Has(path string) bool {
	v := r.Get(path)
	if !v.Exists() || v.Type == gjson.Null {
		return false
	}
	if v.Type == gjson.String && strings.TrimSpace(v.Str) == "" {
		return false
	}
	return true
}

// String returns the first non-empty string value among paths
func (r RawRecord) String(paths ...string) string {
	for _, p := range paths {
		v := r.Get(p)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

// Value returns the first present value as a Go value: string, float64 or nil
func (r RawRecord) Value(paths ...string) any {
	for _, p := range paths {
		v := r.Get(p)
		switch v.Type {
		case gjson.Number:
			return v.Num
		case gjson.String:
			if strings.TrimSpace(v.Str) != "" {
				return v.Str
			}
		}
	}
	return nil
}

// Strings returns the string elements of an array at path, or the single
// string value when path holds a scalar
func (r RawRecord) Strings(path string) []string {
	v := r.Get(path)
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	if !v.IsArray() {
		if s := strings.TrimSpace(v.String()); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, item := range v.Array() {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MarshalJSON emits the original bytes
func (r RawRecord) MarshalJSON() ([]byte, error) {
	if len(r.raw) == 0 {
		return []byte("null"), nil
	}
	return r.raw, nil
}

// UnmarshalJSON keeps a copy of the raw bytes
func (r *RawRecord) UnmarshalJSON(data []byte) error {
	r.raw = append([]byte(nil), data...)
	return nil
}
