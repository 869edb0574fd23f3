package application

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/bnema/forum-agent/internal/domain"
)

var (
	listingLinePattern = regexp.MustCompile(`^\[(\d+)\]\s*(?:\[[^\]]+\]\s*)?(.*)$`)
	listingIDPattern   = regexp.MustCompile(`(?i)\bID[:：]\s*(\d+)\b`)
)

// ParseListing extracts thread references from the plain-text listing. Lines
// of the form "[16] [Tech] title" are preferred, and a pinned tag marks the
// ref pinned; when none match, any line
// carrying "ID: 16" is used with the whole line as title.
func ParseListing(text string, limit int) []domain.ThreadRef {
	limit = max(1, limit)
	lines := splitLines(text)

	var out []domain.ThreadRef
	for _, line := range lines {
		match := listingLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		title := strings.TrimSpace(match[2])
		out = append(out, domain.ThreadRef{ID: id, Title: title, Pinned: domain.LooksPinned(line)})
		if len(out) >= limit {
			return out
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, line := range lines {
		match := listingIDPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, domain.ThreadRef{ID: id, Title: line, Pinned: domain.LooksPinned(line)})
		if len(out) >= limit {
			return out
		}
	}
	return out
}

// PreferUnpinned drops repeated ids and moves pinned threads behind the rest,
// keeping relative order otherwise.
func PreferUnpinned(refs []domain.ThreadRef) []domain.ThreadRef {
	seen := make(map[int64]struct{}, len(refs))
	var regular, pinned []domain.ThreadRef
	for _, ref := range refs {
		if _, dup := seen[ref.ID]; dup {
			continue
		}
		seen[ref.ID] = struct{}{}
		if ref.Pinned {
			pinned = append(pinned, ref)
		} else {
			regular = append(regular, ref)
		}
	}
	return append(regular, pinned...)
}

// FormatListing renders refs in the same "[id] title" shape ParseListing reads.
func FormatListing(refs []domain.ThreadRef) string {
	var b strings.Builder
	for _, ref := range refs {
		b.WriteString("[")
		b.WriteString(strconv.FormatInt(ref.ID, 10))
		b.WriteString("] ")
		if ref.Pinned && !domain.LooksPinned(ref.Title) {
			b.WriteString("[pinned] ")
		}
		b.WriteString(ref.Title)
		b.WriteString("\n")
	}
	return b.String()
}

func splitLines(text string) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
