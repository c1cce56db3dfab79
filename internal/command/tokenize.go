package command

import "strings"

// Tokenize splits input on spaces, keeping single- or double-quoted runs
// together as one token. Quote characters are dropped. An unterminated quote
// swallows the rest of the input.
func Tokenize(input string) []string {
	toks := tokenize(input)
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.text
	}
	return out
}

type token struct {
	text   string
	quoted bool // some part of the token was inside quotes
}

func tokenize(input string) []token {
	tokens := []token{}
	var cur strings.Builder
	var quote rune
	quoted := false

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, token{text: cur.String(), quoted: quoted})
			cur.Reset()
		}
		quoted = false
	}

	for _, ch := range input {
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				cur.WriteRune(ch)
			}
		case ch == '"' || ch == '\'':
			quote = ch
			quoted = true
		case ch == ' ':
			flush()
		default:
			cur.WriteRune(ch)
		}
	}
	flush()

	return tokens
}
