package command

import (
	"regexp"
	"strings"
)

// Marker is the leading character of every command invocation.
const Marker = '/'

// Command is one parsed invocation. Name is lowercased with the marker
// stripped and is the only dispatch key. Fields is filled in by Refine.
type Command struct {
	Name   string
	Args   []string
	Raw    string
	Fields any

	quoted []bool // per Args entry; nil when nothing was quoted
}

// embeddedPattern finds "/word rest-of-line" at the start of any body line.
var embeddedPattern = regexp.MustCompile(`(?m)^/(\w+)[ \t]*(.*)$`)

// ParseSubject returns the command in subject, or nil when the subject does
// not begin with the marker. Unmarked subjects are never commands.
func ParseSubject(subject string) *Command {
	trimmed := strings.TrimSpace(subject)
	if trimmed == "" || trimmed[0] != Marker {
		return nil
	}

	tokens := tokenize(trimmed)
	if len(tokens) == 0 {
		return nil
	}
	name := strings.ToLower(strings.TrimPrefix(tokens[0].text, string(Marker)))
	if name == "" {
		return nil
	}

	cmd := &Command{Name: name, Args: make([]string, 0, len(tokens)-1), Raw: trimmed}
	for i, t := range tokens[1:] {
		cmd.Args = append(cmd.Args, t.text)
		if t.quoted {
			if cmd.quoted == nil {
				cmd.quoted = make([]bool, len(tokens)-1)
			}
			cmd.quoted[i] = true
		}
	}
	return cmd
}

// ParseBody looks for a command on the first line of body, then for a
// "/word ..." line anywhere in it.
func ParseBody(body string) *Command {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil
	}

	firstLine, _, _ := strings.Cut(trimmed, "\n")
	firstLine = strings.TrimRight(firstLine, "\r")
	if cmd := ParseSubject(firstLine); cmd != nil {
		return cmd
	}

	m := embeddedPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return nil
	}
	return &Command{
		Name: strings.ToLower(m[1]),
		Args: strings.Fields(m[2]),
		Raw:  strings.TrimRight(m[0], "\r"),
	}
}

// Parse applies subject-then-body precedence. At most one command comes out
// of a message.
func Parse(subject, body string) *Command {
	if cmd := ParseSubject(subject); cmd != nil {
		return cmd
	}
	return ParseBody(body)
}
