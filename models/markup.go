package models

import (
	"strings"

	"golang.org/x/net/html"
)

// MarkupTitle extracts the <title> text of an HTML body, or "" when there is
// none. Challenge pages usually name themselves there.
func MarkupTitle(body string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				if tokenizer.Next() == html.TextToken {
					return strings.TrimSpace(string(tokenizer.Text()))
				}
				return ""
			}
		}
	}
}
