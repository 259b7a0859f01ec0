// Package gmail provides native Go Gmail API operations for mailtriage.
//
// It turns Gmail messages into canonical types.Email values and exposes the
// list, fetch and modify calls the triage runner needs.
package gmail

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	gm "google.golang.org/api/gmail/v1"

	"github.com/daviddao/mailtriage/internal/types"
)

// TruncationMarker is appended to bodies cut at the configured maximum.
const TruncationMarker = "…"

// Normalize converts a full-format Gmail message into a canonical Email.
// The body is cut to maxBodyChars runes plus TruncationMarker; maxBodyChars <= 0
// disables the cut.
func Normalize(msg *gm.Message, maxBodyChars int) types.Email {
	e := types.Email{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
	}
	if msg.Payload == nil {
		return e
	}

	headers := headerMap(msg.Payload.Headers)
	e.From = headers["from"]
	e.To = headers["to"]
	e.Subject = headers["subject"]
	e.Date = headers["date"]
	e.Body = truncate(strings.TrimSpace(extractBody(msg.Payload)), maxBodyChars)
	return e
}

// extractBody resolves the plain-text body of a payload.
// Inline data on the payload wins; otherwise the part tree is walked depth-first
// and the first text/plain part is preferred over the first text/html part.
func extractBody(payload *gm.MessagePart) string {
	if payload.Body != nil && payload.Body.Data != "" {
		if raw, err := decodeBase64URL(payload.Body.Data); err == nil {
			if isMIME(payload, "text/html") {
				return StripHTML(raw)
			}
			return strings.TrimSpace(raw)
		}
	}

	var plain, htmlBody string
	var walk func(parts []*gm.MessagePart)
	walk = func(parts []*gm.MessagePart) {
		for _, part := range parts {
			if part == nil {
				continue
			}
			if part.Body != nil && part.Body.Data != "" {
				if raw, err := decodeBase64URL(part.Body.Data); err == nil {
					switch {
					case isMIME(part, "text/plain") && plain == "":
						plain = raw
					case isMIME(part, "text/html") && htmlBody == "":
						htmlBody = raw
					}
				}
			}
			walk(part.Parts)
		}
	}
	walk(payload.Parts)

	if plain != "" {
		return strings.TrimSpace(plain)
	}
	if htmlBody != "" {
		return StripHTML(htmlBody)
	}
	return ""
}

// StripHTML reduces an HTML document to its visible text with all whitespace
// runs collapsed to single spaces.
func StripHTML(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			if isHidden(z) {
				skip++
			}
		case html.EndTagToken:
			if isHidden(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isHidden(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}

func isMIME(part *gm.MessagePart, mimeType string) bool {
	return strings.EqualFold(part.MimeType, mimeType)
}

// headerMap converts Gmail API headers into a map keyed by lower-cased name.
// Later duplicates overwrite earlier ones.
func headerMap(headers []*gm.MessagePartHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		if h == nil || h.Name == "" {
			continue
		}
		m[strings.ToLower(h.Name)] = h.Value
	}
	return m
}

// decodeBase64URL decodes Gmail's base64url-encoded content.
// Invalid UTF-8 sequences are replaced with U+FFFD.
func decodeBase64URL(data string) (string, error) {
	// Gmail omits padding on most payloads but not all.
	data = strings.TrimRight(data, "=")
	decoded, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(decoded), "�"), nil
}

func truncate(body string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(body) <= maxChars {
		return body
	}
	runes := []rune(body)
	return string(runes[:maxChars]) + TruncationMarker
}
