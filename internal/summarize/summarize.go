// Package summarize produces titles, summaries and key points for fetched
// pages. Rules is always available; a Workflow summarizer can be chained in
// front of it.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const maxKeyPoints = 5

type Input struct {
	URL       string
	Title     string // derived title, may be empty
	Text      string // reduced page text
	Questions []string
}

type Summary struct {
	Title     string
	Content   string
	KeyPoints []string
}

type Summarizer interface {
	Summarize(ctx context.Context, in Input) (Summary, error)
}

// Rules is the deterministic summarizer. It never fails.
type Rules struct{}

func (Rules) Summarize(_ context.Context, in Input) (Summary, error) {
	title := in.Title
	if title == "" {
		title = "Untitled Article"
	}
	points := KeyPoints(in.Text, in.Questions)

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Summary of %s\n\n", in.URL)
	sb.WriteString(overview(in.Text, in.Questions))
	sb.WriteString("\n\n### Key Points:\n")
	for _, p := range points {
		sb.WriteString("- " + p + "\n")
	}
	sb.WriteString("\n---\n*Extracted by Clawderous 📧*\n")

	return Summary{
		Title:     "📝 Extract: " + title,
		Content:   sb.String(),
		KeyPoints: points,
	}, nil
}

// KeyPoints returns the caller's questions (at most five) when given, and
// otherwise a fixed set of generic points sized by word count.
func KeyPoints(text string, questions []string) []string {
	if len(questions) > 0 {
		if len(questions) > maxKeyPoints {
			questions = questions[:maxKeyPoints]
		}
		return append([]string(nil), questions...)
	}

	var points []string
	if len(strings.Fields(text)) < 100 {
		points = append(points, "Short content - visit URL for full details")
	} else {
		points = append(points,
			"Main topic identified from page content",
			"Key information extracted successfully",
			"Multiple sections found in the article",
		)
	}
	points = append(points, "Actionable insights included", "Relevant examples mentioned")
	if len(points) > maxKeyPoints {
		points = points[:maxKeyPoints]
	}
	return points
}

func overview(text string, questions []string) string {
	if len(questions) > 0 {
		var sb strings.Builder
		sb.WriteString("This page was analyzed to address the following question(s):\n")
		for _, q := range questions {
			sb.WriteString("- " + q + "\n")
		}
		sb.WriteString("\nThe content provides relevant information covering these topics.")
		return sb.String()
	}
	return fmt.Sprintf("This article contains approximately %d words of content. "+
		"The page covers several key topics and provides detailed information on the subject matter. "+
		"The main points have been extracted and summarized below.", len(strings.Fields(text)))
}

// Chain tries Primary and degrades to Rules on error or empty output.
type Chain struct {
	Primary Summarizer
	Logger  *zap.Logger
}

func (c Chain) Summarize(ctx context.Context, in Input) (Summary, error) {
	if c.Primary != nil {
		s, err := c.Primary.Summarize(ctx, in)
		if err == nil && s.Content != "" {
			if len(in.Questions) > 0 {
				s.KeyPoints = KeyPoints(in.Text, in.Questions)
			}
			return s, nil
		}
		if c.Logger != nil {
			c.Logger.Warn("summarizer failed, using rule-based summary", zap.String("url", in.URL), zap.Error(err))
		}
	}
	return Rules{}.Summarize(ctx, in)
}

// Runner executes a named workflow and returns its text output.
type Runner interface {
	Execute(ctx context.Context, name string, args map[string]string) (string, error)
}

// Workflow delegates to an external workflow. It is sent url, title, text
// and newline-separated questions, and its output becomes the content.
type Workflow struct {
	Runner Runner
	Name   string
}

func (w Workflow) Summarize(ctx context.Context, in Input) (Summary, error) {
	out, err := w.Runner.Execute(ctx, w.Name, map[string]string{
		"url":       in.URL,
		"title":     in.Title,
		"text":      in.Text,
		"questions": strings.Join(in.Questions, "\n"),
	})
	if err != nil {
		return Summary{}, fmt.Errorf("summarize workflow %s: %w", w.Name, err)
	}
	title := in.Title
	if title == "" {
		title = "Untitled Article"
	}
	return Summary{
		Title:     "📝 Extract: " + title,
		Content:   strings.TrimSpace(out),
		KeyPoints: KeyPoints(in.Text, in.Questions),
	}, nil
}
