package broadcast

import (
	"strings"

	"creatorbot/internal/directory"
)

// Parse turns the raw text following the broadcast command into a Request.
//
// A trailing "all" token widens the scope to every known recipient, unless
// the token before it looks like a URL or channel handle, in which case
// "all" is kept as part of the message text. The heuristic is best-effort
// and kept for compatibility with existing operator habits. It only guards
// the plain-text form: five tokens ending in "all" are always the image
// form plus a scope directive, even though an image broadcast ends in a
// button URL.
//
// Exactly four remaining tokens are read as an image broadcast
// (text, image URL, button label, button URL); any other count keeps the
// whole remaining string as plain text. Pure function, no I/O.
func Parse(raw string) (Request, error) {
	text := strings.TrimSpace(raw)
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return Request{}, ErrEmptyPayload
	}

	scope := directory.ScopeSubscribed
	if strings.EqualFold(tokens[len(tokens)-1], "all") {
		if len(tokens) == 1 {
			// "all" alone carries no message.
			return Request{}, ErrEmptyPayload
		}
		if len(tokens) == 5 || !looksLikeLink(tokens[len(tokens)-2]) {
			scope = directory.ScopeAll
			tokens = tokens[:len(tokens)-1]
			text = stripLastToken(text)
		}
	}

	if text == "" {
		return Request{}, ErrEmptyPayload
	}

	if len(tokens) == 4 {
		return Request{
			Scope: scope,
			Payload: MediaPayload{
				Text:        tokens[0],
				ImageURL:    tokens[1],
				ButtonLabel: tokens[2],
				ButtonURL:   tokens[3],
			},
		}, nil
	}
	return Request{Scope: scope, Payload: TextPayload{Text: text}}, nil
}

// looksLikeLink reports whether tok reads as a URL or a channel handle,
// meaning a trailing "all" after it belongs to the message, not the scope.
func looksLikeLink(tok string) bool {
	t := strings.ToLower(tok)
	switch {
	case strings.HasPrefix(t, "@"):
		return true
	case strings.HasPrefix(t, "http"):
		return true
	case strings.HasSuffix(t, ".me"):
		return true
	case strings.Contains(t, "/") && (strings.Contains(t, "t.me") || strings.Contains(t, "telegram")):
		return true
	}
	return false
}

// stripLastToken removes the final whitespace-separated token while
// preserving the interior whitespace of what remains.
func stripLastToken(s string) string {
	s = strings.TrimRight(s, " \t\n")
	if i := strings.LastIndexAny(s, " \t\n"); i >= 0 {
		return strings.TrimRight(s[:i], " \t\n")
	}
	return ""
}
