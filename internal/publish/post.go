package publish

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/baselinewatch/internal/ir"
)

// FeatureURLBase is where feature links point.
const FeatureURLBase = "https://webstatus.dev/features/"

// MaxPostRunes bounds the post length. Bluesky counts graphemes; runes
// are never fewer.
const MaxPostRunes = 300

// ErrPostTooLong is returned for a post that cannot be shortened to
// MaxPostRunes, which only happens when the link alone is too long.
var ErrPostTooLong = errors.New("post exceeds length limit")

// Post is the rendered text plus its link annotations.
type Post struct {
	Text   string  `json:"text"`
	Facets []Facet `json:"facets,omitempty"`
}

// Facet marks Text[ByteStart:ByteEnd] as a link to URI. Offsets are
// UTF-8 byte offsets, as the AT Protocol requires.
type Facet struct {
	ByteStart int    `json:"byteStart"`
	ByteEnd   int    `json:"byteEnd"`
	URI       string `json:"uri"`
}

// FormatPost renders f. It understands webstatus items
// (baseline.status newly/widely), release entries (status.baseline
// low/high) and feed items (title, link); anything else is announced by id.
func FormatPost(f ir.Feature) Post {
	obj, _ := f.Record.(ir.IRObject)

	// Post text is NFC so decomposed accents do not use up the budget.
	name := norm.NFC.String(firstNonEmpty(obj.String("name"), obj.String("title"), f.ID))
	link := obj.String("link")
	if link == "" {
		link = FeatureURLBase + url.PathEscape(f.ID)
	}

	var suffix string
	switch baselineLevel(obj) {
	case "widely":
		suffix = " is now Baseline widely available"
	case "newly":
		suffix = " is now Baseline newly available"
	default:
		suffix = " has been updated"
	}

	// Head, blank line, link must fit even without a description.
	room := MaxPostRunes - utf8.RuneCountInString(suffix) - utf8.RuneCountInString(link) - 2
	if utf8.RuneCountInString(name) > room {
		name = truncate(name, room)
	}
	head := name + suffix

	desc := norm.NFC.String(strings.TrimSpace(obj.String("description")))
	// Head, blank line, description, blank line, link.
	budget := MaxPostRunes - utf8.RuneCountInString(head) - utf8.RuneCountInString(link) - 4
	desc = truncate(desc, budget)

	var b strings.Builder
	b.WriteString(head)
	if desc != "" {
		b.WriteString("\n\n")
		b.WriteString(desc)
	}
	b.WriteString("\n\n")
	start := b.Len()
	b.WriteString(link)

	return Post{
		Text:   b.String(),
		Facets: []Facet{{ByteStart: start, ByteEnd: b.Len(), URI: link}},
	}
}

// Check returns ErrPostTooLong when the text is over MaxPostRunes.
func (p Post) Check() error {
	if n := utf8.RuneCountInString(p.Text); n > MaxPostRunes {
		return fmt.Errorf("%w: %d runes, limit %d", ErrPostTooLong, n, MaxPostRunes)
	}
	return nil
}

// baselineLevel maps both status vocabularies to "newly" or "widely".
func baselineLevel(obj ir.IRObject) string {
	switch obj.Object("baseline").String("status") {
	case "newly":
		return "newly"
	case "widely":
		return "widely"
	}
	switch obj.Object("status").String("baseline") {
	case "low":
		return "newly"
	case "high":
		return "widely"
	}
	return ""
}

func truncate(s string, max int) string {
	if max <= 1 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
