package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s']+`)
	apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'")
)

var dateLayouts = []string{
	"20060102",
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// CleanText strips HTML entities, URLs and punctuation and squeezes whitespace.
// Apostrophes survive so contractions such as "isn't" stay one word.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = apostrophes.Replace(decoded)
	decoded = urlRegex.ReplaceAllString(decoded, " ")
	decoded = punctuation.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// Words returns the lowercased words of text after CleanText.
func Words(text string) []string {
	fields := strings.Fields(strings.ToLower(CleanText(text)))
	words := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f != "" {
			words = append(words, f)
		}
	}
	return words
}

// NormalizeHeadline trims the headline and collapses inner whitespace.
func NormalizeHeadline(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// BuildHeadlineID hashes the publish date and text into a stable id, so the
// same headline delivered twice maps to the same document.
func BuildHeadlineID(text string, published *time.Time) string {
	date := ""
	if published != nil {
		date = published.UTC().Format("2006-01-02")
	}
	s := sha1.Sum([]byte(date + "|" + NormalizeHeadline(text)))
	return hex.EncodeToString(s[:])
}

// ParsePublishDate accepts the compact yyyymmdd form used by headline dumps
// as well as ISO dates and RFC3339 timestamps. Empty input yields nil.
func ParsePublishDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			ts = ts.UTC()
			return &ts, nil
		}
	}
	return nil, fmt.Errorf("unrecognized publish date %q", raw)
}
