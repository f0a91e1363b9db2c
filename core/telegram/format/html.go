// Package format builds Telegram HTML message fragments.
package format

import (
	"html"
	"strings"
)

// Escape makes s safe inside an HTML-mode message.
func Escape(s string) string { return html.EscapeString(s) }

// Bold wraps escaped s in <b>.
func Bold(s string) string { return "<b>" + Escape(s) + "</b>" }

// Italic wraps escaped s in <i>.
func Italic(s string) string { return "<i>" + Escape(s) + "</i>" }

// Code wraps escaped s in <code>.
func Code(s string) string { return "<code>" + Escape(s) + "</code>" }

// Field renders a "<b>label:</b> value" line.
func Field(label, value string) string {
	return "<b>" + Escape(label) + ":</b> " + Escape(value)
}

// Bullets renders one "• item" line per item, escaped.
func Bullets(items []string) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("• " + Escape(it))
	}
	return b.String()
}

// Or returns def when s is blank.
func Or(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
