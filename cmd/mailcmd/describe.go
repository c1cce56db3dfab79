package main

import (
	"clawderous/internal/command"
	"clawderous/internal/domain"
	"clawderous/internal/pipeline"

	"gopkg.in/yaml.v3"
)

type parsedView struct {
	Command string         `yaml:"command"`
	Args    []string       `yaml:"args,omitempty"`
	Raw     string         `yaml:"raw,omitempty"`
	Fields  map[string]any `yaml:"fields,omitempty"`
}

// describe renders the parse of subject and body as YAML.
func describe(subject, body string) ([]byte, error) {
	cmd := command.Parse(subject, body)
	if cmd == nil {
		return yaml.Marshal(map[string]any{"command": nil})
	}
	command.Refine(cmd, pipeline.CommandBody(&domain.InboundEmail{Subject: subject, Text: body}, cmd))

	view := parsedView{Command: cmd.Name, Args: cmd.Args, Raw: cmd.Raw}
	switch f := cmd.Fields.(type) {
	case command.MemoFields:
		view.Fields = map[string]any{"title": f.Title, "content": f.Content}
	case command.BlogFields:
		view.Fields = map[string]any{"title": f.Title, "content": f.Content}
	case command.ExtractFields:
		view.Fields = map[string]any{"url": f.URL, "questions": f.Questions}
	case command.RunFields:
		view.Fields = map[string]any{"workflow": f.Workflow, "args": f.Args}
	case command.ReplyFields:
		view.Fields = map[string]any{"to": f.To, "content": f.Content}
	case command.ArgsFields:
		view.Fields = map[string]any{"body": f.Body}
	}
	return yaml.Marshal(view)
}
