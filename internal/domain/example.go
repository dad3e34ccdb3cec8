package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// KeyPrefix is the common prefix for all store keys.
const KeyPrefix = "nqdecode:"

// ExampleID identifies a document. Natural Questions ids are 64-bit integers,
// other exports use strings; both are kept in canonical textual form.
type ExampleID string

// String returns the textual id.
func (id ExampleID) String() string { return string(id) }

// IsNumeric reports whether the id is a canonical integer literal, one that
// formats back to the same text ("42", "-7"; not "007", "+5" or "-0").
func (id ExampleID) IsNumeric() bool {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == string(id)
}

// MarshalJSON emits canonical integer ids as JSON numbers and everything
// else as strings, so the output is always valid JSON.
func (id ExampleID) MarshalJSON() ([]byte, error) {
	if id.IsNumeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts both JSON numbers and strings.
func (id *ExampleID) UnmarshalJSON(data []byte) error {
	s, err := DecodeID(data, "example_id")
	if err != nil {
		return err
	}
	*id = ExampleID(s)
	return nil
}

// DecodeID decodes an identifier that may be encoded as a JSON number or string.
func DecodeID(data []byte, field string) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", fmt.Errorf("%s is required: %w", field, ErrInvalidInput)
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("decode %s: %w", field, err)
		}
		if s == "" {
			return "", fmt.Errorf("%s is empty: %w", field, ErrInvalidInput)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", fmt.Errorf("decode %s: %w", field, err)
	}
	return n.String(), nil
}
