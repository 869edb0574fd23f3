package draft

import (
	"fmt"
	"strings"

	"github.com/bnema/forum-agent/internal/ports"
)

const defaultPersona = "You are a regular member of an online community forum."

func systemPrompt(persona string) string {
	persona = strings.TrimSpace(persona)
	if persona == "" {
		persona = defaultPersona
	}
	return persona + "\n" +
		"Always speak as this persona. Never describe yourself as an AI or a language model.\n" +
		"Answer with a single strict JSON object and nothing else."
}

func replyPrompt(req ports.ReplyDraftRequest) string {
	ev := req.Event
	var b strings.Builder

	if strings.HasPrefix(req.Purpose, "auto_reply") {
		b.WriteString("You received a forum notification.\n")
		fmt.Fprintf(&b, "- type: %s\n", ev.Type)
		fmt.Fprintf(&b, "- from: @%s\n", orUnknown(ev.FromUsername))
	} else {
		b.WriteString("You are browsing the forum and opened a thread to read it.\n")
	}
	fmt.Fprintf(&b, "- thread: %q (ID:%s)\n", orUnknown(ev.ThreadTitle), idString(ev.ThreadID))
	if ev.Content != "" {
		fmt.Fprintf(&b, "- preview: %s\n", ev.Content)
	}

	b.WriteString("\nThread body and some floors (may be truncated):\n")
	b.WriteString(req.ThreadText)
	b.WriteString("\n\nDecide whether to reply and write the reply.\n")
	b.WriteString(`Output JSON: {"should_reply": true|false, "content": "...", "diary": "..."}` + "\n")
	b.WriteString("- content is empty when you do not reply.\n")
	b.WriteString("- a reply must carry substance; keep the tone natural and friendly; never open a new thread.\n")
	b.WriteString("- diary is an optional short note about what you read.\n")
	return b.String()
}

func browsePrompt(req ports.BrowseRequest) string {
	var b strings.Builder

	b.WriteString("You are casually browsing the forum on a schedule.\n\nThread listing:\n")
	b.WriteString(req.Listing)
	b.WriteString("\n\nYou may open at most one thread to read before deciding whether to reply. Do not open a new thread.\n")
	fmt.Fprintf(&b, "Avoid threads you joined recently: %s\n", idList(req.SkipThreadIDs))
	b.WriteString(`Output JSON: {"action": "none"|"reply_thread", "thread_id": 123, "thread_title": "...", "diary": "..."}` + "\n")
	b.WriteString("- action none means you only browse; reply_thread means you want to read that thread.\n")
	b.WriteString("- thread_id is required when action is reply_thread.\n")
	b.WriteString("- diary is a short browsing note.\n")
	return b.String()
}

func threadPrompt(req ports.ThreadDraftRequest) string {
	var b strings.Builder

	b.WriteString("You may publish a new discussion thread on the forum.\n")
	b.WriteString("Use the recent activity below to pick a topic worth discussing in public.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. Never reveal private data such as phone numbers, emails, real names, invite links or tokens.\n")
	b.WriteString("2. Do not quote private conversations or name where they took place.\n")
	b.WriteString("3. Do not invent facts.\n")
	b.WriteString("4. Share a view or experience, or ask a clear question.\n\n")
	fmt.Fprintf(&b, "Allowed categories: %s\n\n", strings.Join(req.Categories, ", "))
	b.WriteString("Recent activity (may be truncated or empty):\n")
	b.WriteString(req.RecentContext)
	b.WriteString("\n\n")
	b.WriteString(`Output JSON: {"should_post": true|false, "category": "chat", "title": "...", "content": "...", "reason": "..."}` + "\n")
	b.WriteString("- when should_post is false the other fields may be empty.\n")
	b.WriteString("- title is 2 to 100 characters; content is at least 50 characters.\n")
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func idString(id *int64) string {
	if id == nil {
		return "?"
	}
	return fmt.Sprint(*id)
}

func idList(ids []int64) string {
	if len(ids) == 0 {
		return "[]"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
