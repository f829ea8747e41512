package templates

import (
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
)

// legacy Markdown only reserves these
var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// EscapeMarkdown escapes text for Telegram's legacy Markdown parse mode
func EscapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// SafeText drops invalid UTF-8 and escapes Markdown. Use it on detector-supplied text.
func SafeText(text string) string {
	return EscapeMarkdown(strings.ToValidUTF8(text, ""))
}

// RelTime renders t relative to now ("3 minutes ago")
func RelTime(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

// funcs is available to every template
var funcs = template.FuncMap{
	"escape":  SafeText,
	"join":    strings.Join,
	"reltime": RelTime,
}
