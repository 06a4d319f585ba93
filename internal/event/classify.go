package event

import (
	"sort"
	"strings"
	"unicode"
)

// Classifier maps content keywords to tags. The mapping is fixed at
// construction; matching is on whole lower-cased words.
type Classifier struct {
	keywords []string
	tags     map[string]string
}

// NewClassifier builds a Classifier from a keyword -> tag map.
func NewClassifier(keywordTags map[string]string) *Classifier {
	c := &Classifier{tags: make(map[string]string, len(keywordTags))}
	for kw, tag := range keywordTags {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || tag == "" {
			continue
		}
		c.tags[kw] = tag
		c.keywords = append(c.keywords, kw)
	}
	sort.Strings(c.keywords)
	return c
}

// Classify returns the tag of the first keyword (in sorted order) present in
// content, or DefaultTag when none match.
func (c *Classifier) Classify(content string) string {
	if c == nil || len(c.keywords) == 0 {
		return DefaultTag
	}
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
	}) {
		words[w] = true
	}
	for _, kw := range c.keywords {
		if words[kw] {
			return c.tags[kw]
		}
	}
	return DefaultTag
}

// Apply tags an untagged record. Records that already carry a tag are
// returned unchanged.
func (c *Classifier) Apply(r Record) Record {
	if r.Tag != "" {
		return r
	}
	r.Tag = c.Classify(r.Content)
	return r
}
