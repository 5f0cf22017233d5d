// Package feed decodes scraped shop feeds into raw records
package feed

import (
	"bytes"
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"github.com/pricefeed/backend/internal/domain"
)

// DefaultMaxBytes caps a feed body
const DefaultMaxBytes = 256 << 20

// Decode reads a JSON array or a JSON Lines body and returns its records in
// order. A body larger than maxBytes is rejected; maxBytes <= 0 uses the default.
func Decode(r io.Reader, maxBytes int64) ([]domain.RawRecord, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading feed: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: feed exceeds %d bytes", domain.ErrInvalidRequest, maxBytes)
	}
	return DecodeBytes(data)
}

// DecodeBytes is Decode over an in-memory body
func DecodeBytes(data []byte) ([]domain.RawRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		return decodeArray(trimmed)
	}
	return decodeLines(trimmed)
}

func decodeArray(data []byte) ([]domain.RawRecord, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: feed is not a valid JSON array", domain.ErrInvalidRequest)
	}
	var records []domain.RawRecord
	gjson.ParseBytes(data).ForEach(func(_, value gjson.Result) bool {
		records = append(records, domain.NewRawRecord([]byte(value.Raw)))
		return true
	})
	return records, nil
}

func decodeLines(data []byte) ([]domain.RawRecord, error) {
	var records []domain.RawRecord
	for i, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			return nil, fmt.Errorf("%w: line %d is not valid JSON", domain.ErrInvalidRequest, i+1)
		}
		records = append(records, domain.NewRawRecord(bytes.Clone(line)))
	}
	return records, nil
}
