package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Minutes is an event duration in whole minutes.
type Minutes int

// Duration converts m to a time.Duration.
func (m Minutes) Duration() time.Duration {
	return time.Duration(m) * time.Minute
}

// ParseMinutes parses a duration given as a decimal integer string, with
// optional surrounding whitespace.
func ParseMinutes(s string) (Minutes, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyDuration
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return Minutes(n), nil
}

// RawDuration holds a duration exactly as it arrived on the wire. JSON
// numbers and JSON strings are both accepted and kept as text so that
// parsing happens once, at validation.
type RawDuration string

// UnmarshalJSON accepts 90, "90" and null.
func (r *RawDuration) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = RawDuration(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDuration, string(b))
	}
	*r = RawDuration(n.String())
	return nil
}

// UnmarshalYAML accepts duration: 90, duration: "90" and an empty value.
func (r *RawDuration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: expected a scalar at line %d", ErrInvalidDuration, value.Line)
	}
	if value.Tag == "!!null" {
		*r = ""
		return nil
	}
	*r = RawDuration(value.Value)
	return nil
}

// Minutes parses r.
func (r RawDuration) Minutes() (Minutes, error) {
	return ParseMinutes(string(r))
}
