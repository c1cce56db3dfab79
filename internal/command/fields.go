package command

import (
	"fmt"
	"strings"
)

type MemoFields struct {
	Title   string
	Content string
}

type BlogFields struct {
	Title   string
	Content string
}

type ExtractFields struct {
	URL       string
	Questions []string
}

type RunFields struct {
	Workflow string
	Args     map[string]string
}

type ReplyFields struct {
	To      string
	Content string
}

// ArgsFields is the payload for commands without a dedicated shape.
type ArgsFields struct {
	Args []string
	Body string
}

type refiner func(cmd *Command, body string) any

var refiners = map[string]refiner{
	"memo":    refineMemo,
	"blog":    refineBlog,
	"extract": refineExtract,
	"run":     refineRun,
	"reply":   refineReply,
}

// Refine fills cmd.Fields from its args and the message body. The subject
// carries the arguments; the body supplies long-form content.
func Refine(cmd *Command, body string) {
	if cmd == nil {
		return
	}
	body = strings.TrimSpace(body)
	if r, ok := refiners[cmd.Name]; ok {
		cmd.Fields = r(cmd, body)
		return
	}
	cmd.Fields = ArgsFields{Args: cmd.Args, Body: body}
}

func refineMemo(cmd *Command, body string) any {
	joined := strings.Join(cmd.Args, " ")
	switch {
	case joined != "" && body != "":
		return MemoFields{Title: joined, Content: body}
	case joined != "":
		return MemoFields{Content: joined}
	default:
		return MemoFields{Content: body}
	}
}

func refineBlog(cmd *Command, body string) any {
	title := strings.Join(cmd.Args, " ")
	content := body
	if content == "" {
		content = title
	}
	return BlogFields{Title: title, Content: content}
}

// refineExtract takes the first argument as the URL. Each quoted argument is
// a question of its own; runs of unquoted words form one free-text question.
func refineExtract(cmd *Command, _ string) any {
	f := ExtractFields{}
	if len(cmd.Args) == 0 {
		return f
	}
	f.URL = cmd.Args[0]

	var words []string
	flush := func() {
		if len(words) > 0 {
			f.Questions = append(f.Questions, strings.Join(words, " "))
			words = nil
		}
	}
	for i := 1; i < len(cmd.Args); i++ {
		if cmd.argQuoted(i) {
			flush()
			f.Questions = append(f.Questions, cmd.Args[i])
			continue
		}
		words = append(words, cmd.Args[i])
	}
	flush()
	return f
}

func (c *Command) argQuoted(i int) bool {
	return i < len(c.quoted) && c.quoted[i]
}

func refineRun(cmd *Command, _ string) any {
	args := cmd.Args
	f := RunFields{Args: map[string]string{}}
	if len(args) == 0 {
		return f
	}
	f.Workflow = args[0]
	pos := 0
	for _, a := range args[1:] {
		if k, v, ok := strings.Cut(a, "="); ok && k != "" {
			f.Args[k] = v
			continue
		}
		pos++
		f.Args[fmt.Sprintf("arg%d", pos)] = a
	}
	return f
}

func refineReply(cmd *Command, body string) any {
	args := cmd.Args
	f := ReplyFields{}
	if len(args) == 0 {
		return f
	}
	f.To = args[0]
	f.Content = strings.Join(args[1:], " ")
	if f.Content == "" {
		f.Content = body
	}
	return f
}
