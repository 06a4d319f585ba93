// Package feed reads line-delimited JSON event files.
package feed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/lazypower/horizon/internal/event"
)

// maxLine bounds a single JSONL line.
const maxLine = 1024 * 1024

// Line is one event as written in a feed file. Timestamp accepts RFC 3339;
// when it is absent the parser's clock fills it in.
type Line struct {
	ID        string            `json:"id,omitempty"`
	Source    string            `json:"source"`
	Content   string            `json:"content"`
	Tag       string            `json:"tag,omitempty"`
	Resonance *float64          `json:"resonance"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Related   []string          `json:"related,omitempty"`
}

// Result is what a parse produced. Skipped counts malformed lines.
type Result struct {
	Events  []event.Record
	Skipped int
}

// Parser turns feed lines into validated event records.
type Parser struct {
	// Now stamps lines without a timestamp. Nil means time.Now.
	Now func() time.Time
	// Classifier tags lines without a tag. Nil leaves the default tag.
	Classifier *event.Classifier
}

// ParseFile reads a JSONL feed file.
func (p *Parser) ParseFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse reads JSONL from r. Blank lines are ignored and malformed lines are
// counted in Skipped; only a read failure returns an error.
func (p *Parser) Parse(r io.Reader) (Result, error) {
	var res Result
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ev, err := p.parseLine([]byte(line))
		if err != nil {
			res.Skipped++
			continue
		}
		res.Events = append(res.Events, ev)
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("scan feed: %w", err)
	}
	return res, nil
}

// ParseLines parses feed content held in a string.
func (p *Parser) ParseLines(content string) Result {
	res, _ := p.Parse(strings.NewReader(content))
	return res
}

func (p *Parser) parseLine(line []byte) (event.Record, error) {
	var l Line
	if err := json.Unmarshal(line, &l); err != nil {
		return event.Record{}, fmt.Errorf("%w: %v", event.ErrMalformed, err)
	}
	return p.Record(l)
}

// Record converts a decoded line into a validated event. A supplied id must
// match the one derived from the line's fields.
func (p *Parser) Record(l Line) (event.Record, error) {
	if l.Resonance == nil {
		return event.Record{}, fmt.Errorf("%w: missing resonance", event.ErrMalformed)
	}
	ts := p.now()
	if l.Timestamp != nil {
		ts = *l.Timestamp
	}

	ev := event.Record{
		Source:    strings.TrimSpace(l.Source),
		Content:   l.Content,
		Tag:       strings.TrimSpace(l.Tag),
		Resonance: *l.Resonance,
		Timestamp: ts,
		Metadata:  l.Metadata,
		Related:   l.Related,
	}
	ev = p.Classifier.Apply(ev)
	if err := ev.Validate(); err != nil {
		return event.Record{}, err
	}
	given := l.ID
	ev = ev.Normalize()
	if given != "" && given != ev.ID {
		return event.Record{}, fmt.Errorf("%w: id %s does not match content", event.ErrMalformed, given)
	}
	return ev, nil
}

func (p *Parser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
