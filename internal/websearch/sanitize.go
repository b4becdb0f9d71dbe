package websearch

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// sanitizeSnippet strips any HTML markup a search snippet may carry and
// truncates it to limit bytes on a rune boundary. Snippets end up inside
// generation prompts, so markup is noise at best.
func sanitizeSnippet(s string, limit int) string {
	if strings.ContainsAny(s, "<>") {
		s = stripTags(s)
	}
	s = strings.Join(strings.Fields(s), " ")

	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// stripTags walks the tokenized HTML and keeps only text nodes.
func stripTags(s string) string {
	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(tokenizer.Text())
		}
	}
}
