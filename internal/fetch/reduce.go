package fetch

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MaxTextChars caps the reduced page text.
const MaxTextChars = 10000

var markdownHeading = regexp.MustCompile(`(?m)^#[ \t]+(.+)$`)

// Reduce turns raw page content into plain text: script and style blocks
// are dropped, tags become spaces, whitespace collapses to single spaces and
// the result is cut to MaxTextChars characters.
func Reduce(raw string) string {
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(raw))
	skip := 0

loop:
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				sb.WriteString(" ")
			}
			break loop
		case html.StartTagToken:
			if isHidden(z) {
				skip++
			}
			sb.WriteString(" ")
		case html.EndTagToken:
			if isHidden(z) && skip > 0 {
				skip--
			}
			sb.WriteString(" ")
		case html.SelfClosingTagToken:
			sb.WriteString(" ")
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}

	text := strings.Join(strings.Fields(sb.String()), " ")
	return truncateRunes(text, MaxTextChars)
}

func isHidden(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	a := atom.Lookup(name)
	return a == atom.Script || a == atom.Style
}

// Title derives a page title: a markdown "# " heading, else the first <h1>,
// else the first line of text longer than 20 characters cut to 80. It
// returns "" when none applies.
func Title(raw, text string) string {
	if m := markdownHeading.FindStringSubmatch(raw); m != nil {
		if t := strings.TrimSpace(m[1]); t != "" {
			return t
		}
	}
	if t := firstH1(raw); t != "" {
		return t
	}
	for _, line := range strings.Split(text, "\n") {
		if len([]rune(line)) > 20 {
			return truncateRunes(line, 80)
		}
	}
	return ""
}

func firstH1(raw string) string {
	z := html.NewTokenizer(strings.NewReader(raw))
	inH1 := false
	var sb strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			if name, _ := z.TagName(); atom.Lookup(name) == atom.H1 {
				inH1 = true
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); inH1 && atom.Lookup(name) == atom.H1 {
				if t := strings.Join(strings.Fields(sb.String()), " "); t != "" {
					return t
				}
				inH1 = false
			}
		case html.TextToken:
			if inH1 {
				sb.Write(z.Text())
			}
		}
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
