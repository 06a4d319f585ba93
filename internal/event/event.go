// Package event defines the immutable unit of stream data consumed by the
// pattern detector, the resonance tracker and the horizon scanner.
package event

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DefaultTag is assigned to events that arrive without a category tag.
const DefaultTag = "neutral"

// ErrMalformed marks an event missing required fields. Ingestion skips it.
var ErrMalformed = errors.New("malformed event")

// idNamespace scopes the name-based UUIDs produced by DeriveID.
var idNamespace = uuid.MustParse("6f1c1f0e-3b52-4d0a-9a57-6a3f3c2b8e41")

// Record is a single timestamped, tagged unit of stream data. A Record is
// created once and never mutated; consumers hold copies.
type Record struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Content   string            `json:"content"`
	Tag       string            `json:"tag"`
	Resonance float64           `json:"resonance"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Related   []string          `json:"related,omitempty"`
}

// New builds a Record with its derived ID. An empty tag becomes DefaultTag.
func New(source, content, tag string, resonance float64, ts time.Time) Record {
	if tag == "" {
		tag = DefaultTag
	}
	return Record{
		ID:        DeriveID(source, content, ts),
		Source:    source,
		Content:   content,
		Tag:       tag,
		Resonance: resonance,
		Timestamp: ts,
	}
}

// DeriveID returns the identity of an event as a name-based UUID over
// (source, content, timestamp). The timestamp contributes its Unix
// nanoseconds, so monotonic readings and location do not change the ID.
func DeriveID(source, content string, ts time.Time) string {
	name := make([]byte, 0, len(source)+len(content)+24)
	name = append(name, source...)
	name = append(name, 0)
	name = append(name, content...)
	name = append(name, 0)
	name = strconv.AppendInt(name, ts.UnixNano(), 10)
	return uuid.NewSHA1(idNamespace, name).String()
}

// WithID returns a copy whose ID is derived from its fields.
func (r Record) WithID() Record {
	r.ID = DeriveID(r.Source, r.Content, r.Timestamp)
	return r
}

// Normalize returns a copy with the ID derived and the default tag applied.
func (r Record) Normalize() Record {
	if r.Tag == "" {
		r.Tag = DefaultTag
	}
	return r.WithID()
}

// Clone returns a deep copy, so the receiver's maps and slices stay private.
func (r Record) Clone() Record {
	if r.Metadata != nil {
		m := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			m[k] = v
		}
		r.Metadata = m
	}
	if r.Related != nil {
		r.Related = append([]string(nil), r.Related...)
	}
	return r
}

// Validate reports whether the record carries every required field.
// A non-empty ID must match the one derived from the record's fields.
func (r Record) Validate() error {
	if r.Source == "" {
		return fmt.Errorf("%w: missing source", ErrMalformed)
	}
	if r.Content == "" {
		return fmt.Errorf("%w: missing content", ErrMalformed)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrMalformed)
	}
	if math.IsNaN(r.Resonance) || r.Resonance < 0 || r.Resonance > 1 {
		return fmt.Errorf("%w: resonance %v outside [0,1]", ErrMalformed, r.Resonance)
	}
	if r.ID != "" && r.ID != DeriveID(r.Source, r.Content, r.Timestamp) {
		return fmt.Errorf("%w: id %s does not match content", ErrMalformed, r.ID)
	}
	return nil
}

// Duplicate reports whether two records are the same event.
func Duplicate(a, b Record) bool {
	return a.WithID().ID == b.WithID().ID
}
