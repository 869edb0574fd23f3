package forum

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/bnema/forum-agent/internal/domain"
)

var listingKeys = []string{"items", "threads", "data", "results", "list"}

var pinnedFlags = []string{"is_pinned", "pinned", "is_top", "top"}

// ExtractThreads pulls thread references out of a decoded JSON listing. The
// payload is either a bare array or an object carrying the array under one of
// the usual envelope keys. Items without a usable id are dropped and the first
// occurrence of an id wins.
func ExtractThreads(payload any) []domain.ThreadRef {
	items := listingItems(payload)
	refs := make([]domain.ThreadRef, 0, len(items))
	seen := make(map[int64]struct{}, len(items))

	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, ok := threadID(item)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		title := strings.TrimSpace(cast.ToString(item["title"]))
		if title == "" {
			title = strings.TrimSpace(cast.ToString(item["thread_title"]))
		}
		refs = append(refs, domain.ThreadRef{
			ID:     id,
			Title:  title,
			Pinned: pinnedItem(item, title),
		})
	}
	return refs
}

func listingItems(payload any) []any {
	switch v := payload.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range listingKeys {
			if items, ok := v[key].([]any); ok {
				return items
			}
		}
	}
	return nil
}

func threadID(item map[string]any) (int64, bool) {
	for _, key := range []string{"id", "thread_id"} {
		switch v := item[key].(type) {
		case json.Number:
			if id, err := v.Int64(); err == nil {
				return id, true
			}
		case float64:
			if v == float64(int64(v)) {
				return int64(v), true
			}
		case string:
			if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return id, true
			}
		}
	}
	return 0, false
}

func pinnedItem(item map[string]any, title string) bool {
	for _, key := range pinnedFlags {
		if truthy(item[key]) {
			return true
		}
	}
	return domain.LooksPinned(title)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case string:
		b, err := strconv.ParseBool(t)
		if err == nil {
			return b
		}
		return t != "" && t != "0"
	default:
		return cast.ToBool(t)
	}
}
