package ticket

import (
	"encoding/json"
	"maps"
	"time"
)

// Metadata is the open source_metadata map of a ticket.
//
// The accessors below read and write the keys the remediation pipeline owns
// and leave every other key untouched.
type Metadata map[string]any

const (
	keyAutopatch   = "autopatch"
	keyErrorCount  = "error_count"
	keyLastErrorAt = "last_error_at"
	keyLocale      = "locale"
	keyLanguage    = "language"
)

// AutopatchStatus is the outcome recorded for the last autopatch attempt.
type AutopatchStatus string

const (
	AutopatchApplied AutopatchStatus = "applied"
	AutopatchPlanned AutopatchStatus = "planned"
	AutopatchFailed  AutopatchStatus = "failed"
)

// AutopatchState mirrors sourceMetadata.autopatch.
type AutopatchState struct {
	Status         AutopatchStatus `json:"status,omitempty"`
	PatternID      string          `json:"patternId,omitempty"`
	UpdatedAt      *time.Time      `json:"updatedAt,omitempty"`
	AutoFixMessage string          `json:"autoFixMessage,omitempty"`
	LastError      string          `json:"lastError,omitempty"`
	RetryCount     int             `json:"retry_count,omitempty"`
	LastRetryAt    *time.Time      `json:"last_retry_at,omitempty"`
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return maps.Clone(m)
	}
	var out Metadata
	if err := json.Unmarshal(b, &out); err != nil {
		return maps.Clone(m)
	}
	return out
}

// Autopatch decodes the autopatch block. ok is false when it is absent.
func (m Metadata) Autopatch() (state AutopatchState, ok bool) {
	raw, present := m[keyAutopatch]
	if !present || raw == nil {
		return AutopatchState{}, false
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return AutopatchState{}, false
	}
	if err := json.Unmarshal(b, &state); err != nil {
		return AutopatchState{}, false
	}
	return state, true
}

// MergeAutopatch overlays the non-zero fields of s onto the existing autopatch
// block, keeping keys it does not know about.
func (m Metadata) MergeAutopatch(s AutopatchState) {
	current, _ := m[keyAutopatch].(map[string]any)
	merged := maps.Clone(current)
	if merged == nil {
		merged = map[string]any{}
	}

	b, err := json.Marshal(s)
	if err == nil {
		var overlay map[string]any
		if json.Unmarshal(b, &overlay) == nil {
			maps.Copy(merged, overlay)
		}
	}
	m[keyAutopatch] = merged
}

// ErrorCount returns error_count, tolerating numeric encodings from JSON.
func (m Metadata) ErrorCount() int {
	return toInt(m[keyErrorCount])
}

// RecordError increments error_count, stamps last_error_at and returns the
// new count.
func (m Metadata) RecordError(at time.Time) int {
	n := m.ErrorCount() + 1
	m[keyErrorCount] = n
	m[keyLastErrorAt] = at.UTC().Format(time.RFC3339)
	return n
}

// LastErrorAt returns last_error_at if set.
func (m Metadata) LastErrorAt() (time.Time, bool) {
	s, ok := m[keyLastErrorAt].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, err == nil
}

// Locale returns the customer locale, falling back to the language key.
func (m Metadata) Locale() string {
	if s, ok := m[keyLocale].(string); ok && s != "" {
		return s
	}
	s, _ := m[keyLanguage].(string)
	return s
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}
