package application

import (
	"regexp"
	"strings"
)

var (
	emailPattern      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	urlPattern        = regexp.MustCompile(`(?i)\bhttps?://\S+\b`)
	longDigitsPattern = regexp.MustCompile(`\b\d{6,}\b`)
	mentionPattern    = regexp.MustCompile(`@\S+`)
	blankRunPattern   = regexp.MustCompile(`[ \t]+`)
)

// SanitizeOptions controls which public-facing tokens survive sanitizing.
type SanitizeOptions struct {
	AllowURLs     bool
	AllowMentions bool
}

// Sanitize masks emails, long numeric identifiers and, unless allowed, links
// and @mentions before text is published. Runs of spaces and tabs collapse to
// one space.
func Sanitize(text string, opts SanitizeOptions) string {
	out := emailPattern.ReplaceAllString(text, "<EMAIL>")
	out = longDigitsPattern.ReplaceAllString(out, "<ID>")

	if !opts.AllowURLs {
		out = urlPattern.ReplaceAllString(out, "<URL>")
	}
	if !opts.AllowMentions {
		out = mentionPattern.ReplaceAllString(out, "<MENTION>")
	}

	out = blankRunPattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
