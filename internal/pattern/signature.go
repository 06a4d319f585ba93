package pattern

import (
	"fmt"
	"hash"
	"hash/fnv"

	"github.com/lazypower/horizon/internal/event"
)

// signature canonicalizes a subsequence into ordered elements.
func signature(seq []event.Record) []Element {
	sig := make([]Element, len(seq))
	for i, ev := range seq {
		sig[i] = Element{
			Source:  ev.Source,
			Tag:     ev.Tag,
			Content: contentPrefix(ev.Content),
		}
	}
	return sig
}

// Hash returns the pattern ID for a signature: FNV-1a over every field with
// a zero-byte separator, rendered as 16 hex digits.
func Hash(sig []Element) string {
	h := fnv.New64a()
	for _, el := range sig {
		writeString(h, el.Source)
		writeString(h, el.Tag)
		writeString(h, contentPrefix(el.Content))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// sameSequence compares element-wise on source, tag and full content.
func sameSequence(a, b []event.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Source != b[i].Source || a[i].Tag != b[i].Tag || a[i].Content != b[i].Content {
			return false
		}
	}
	return true
}

func contentPrefix(s string) string {
	if len(s) <= contentPrefixLen {
		return s
	}
	r := []rune(s)
	if len(r) <= contentPrefixLen {
		return s
	}
	return string(r[:contentPrefixLen])
}

func writeString(h hash.Hash64, s string) {
	_, _ = h.Write([]byte(s))
	_, _ = h.Write([]byte{0})
}
