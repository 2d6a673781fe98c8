// Package sanitize turns model markdown into plain text Telegram can show
// without a parse mode.
package sanitize

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	linkTag    = regexp.MustCompile(`<a href="([^"]*)"[^>]*>(.*?)</a>`)
	listItem   = regexp.MustCompile(`<li>\s*(?:<p>)?`)
	blockBreak = regexp.MustCompile(`<br\s*/?>|</?p>|</?div>|</?pre>|</?h[1-6]>|</?[uo]l>|</?blockquote>`)
	blankLines = regexp.MustCompile(`\n\s*\n+`)
)

// Policy renders markdown and strips every tag from the result.
type Policy struct {
	policy   *bluemonday.Policy
	markdown goldmark.Markdown
}

// NewTelegramPolicy returns a Policy producing plain text.
func NewTelegramPolicy() *Policy {
	return &Policy{
		policy:   bluemonday.StrictPolicy(),
		markdown: goldmark.New(),
	}
}

// Text converts markdown to plain text. List items become bullets and links
// keep their target in parentheses. Input that fails to render is returned
// unchanged.
func (p *Policy) Text(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := p.markdown.Convert([]byte(markdown), &buf); err != nil {
		return markdown
	}

	out := buf.String()
	out = linkTag.ReplaceAllStringFunc(out, func(tag string) string {
		m := linkTag.FindStringSubmatch(tag)
		if m[1] == "" || m[1] == m[2] {
			return m[2]
		}
		return m[2] + " (" + m[1] + ")"
	})
	out = listItem.ReplaceAllString(out, "• ")
	out = strings.ReplaceAll(out, "</li>", "")
	out = blockBreak.ReplaceAllString(out, "\n")

	out = p.policy.Sanitize(out)
	out = html.UnescapeString(out)
	out = blankLines.ReplaceAllString(out, "\n\n")

	return strings.TrimSpace(out)
}
