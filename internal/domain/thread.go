package domain

import "strings"

type ThreadRef struct {
	ID     int64
	Title  string
	Pinned bool
}

// LooksPinned reports whether a listing title marks the thread as pinned.
func LooksPinned(title string) bool {
	return strings.Contains(title, "置顶") || strings.Contains(strings.ToLower(title), "pinned")
}

// ListFilter narrows a content listing.
type ListFilter struct {
	Page     int
	PageSize int
	Category string
}

// Published is the normalized success payload of a publish call.
type Published struct {
	ID *int64
}

// Categories lists the forum boards a new thread may be filed under.
var Categories = []string{"chat", "deals", "misc", "tech", "help", "intro", "acg"}

func ValidCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}
