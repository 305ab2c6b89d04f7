package mail

import (
	"encoding/base64"
	"regexp"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// maxPartDepth caps the recursion over nested multipart payloads so a
// pathologically deep tree terminates.
const maxPartDepth = 32

var (
	styleBlockRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	scriptBlockRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	headBlockRe   = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	commentRe     = regexp.MustCompile(`(?s)<!--.*?-->`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// ExtractBody produces a single plain-text body from a message payload tree.
//
// The first text/plain leaf found depth-first wins; when the tree holds no
// plain-text leaf, the first text/html leaf is used instead and stripped
// down to text. The function is pure: it performs no I/O and only walks the
// given tree.
func ExtractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	plain, html := findBodies(payload, 0)

	body := plain
	if body == "" {
		body = html
	}
	if body == "" && len(payload.Parts) == 0 {
		// Single-part message with an unlabelled body.
		body = decodePart(payload)
	}

	if looksLikeHTML(body) {
		body = StripHTML(body)
	}
	return strings.TrimSpace(body)
}

// findBodies walks the part tree depth-first and returns the first decoded
// text/plain and text/html leaves.
func findBodies(part *gmail.MessagePart, depth int) (plain, html string) {
	if part == nil || depth > maxPartDepth {
		return "", ""
	}

	if len(part.Parts) == 0 {
		data := decodePart(part)
		switch {
		case strings.HasPrefix(part.MimeType, "text/plain"):
			return data, ""
		case strings.HasPrefix(part.MimeType, "text/html"):
			return "", data
		}
		return "", ""
	}

	for _, child := range part.Parts {
		p, h := findBodies(child, depth+1)
		if plain == "" {
			plain = p
		}
		if html == "" {
			html = h
		}
		if plain != "" {
			return plain, html
		}
	}
	return plain, html
}

// decodePart decodes a leaf part's base64url content. Undecodable content
// yields an empty string; extraction is best effort.
func decodePart(part *gmail.MessagePart) string {
	if part.Body == nil || part.Body.Data == "" {
		return ""
	}
	data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(part.Body.Data, "="))
	if err != nil {
		return ""
	}
	return string(data)
}

// looksLikeHTML reports whether the body is an HTML document rather than
// plain text.
func looksLikeHTML(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype")
}

// StripHTML reduces an HTML document to readable text: style, script and
// head blocks and comments are dropped, remaining tags removed, the five
// common entities decoded and whitespace runs collapsed.
func StripHTML(body string) string {
	body = styleBlockRe.ReplaceAllString(body, "")
	body = scriptBlockRe.ReplaceAllString(body, "")
	body = headBlockRe.ReplaceAllString(body, "")
	body = commentRe.ReplaceAllString(body, "")
	body = tagRe.ReplaceAllString(body, " ")

	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
	)
	body = replacer.Replace(body)

	body = whitespaceRe.ReplaceAllString(body, " ")
	return strings.TrimSpace(body)
}
