package handler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"clawderous/internal/command"
	"clawderous/internal/dispatch"
	"clawderous/internal/domain"
	"clawderous/internal/fetch"
	"clawderous/internal/summarize"

	"go.uber.org/zap"
)

// Extract fetches a page, summarizes it and saves the summary as a memo.
type Extract struct{ deps *Deps }

func (h *Extract) Execute(ctx context.Context, cmd *command.Command, req *dispatch.Request) (domain.ExecutionResult, error) {
	f, err := fieldsOf[command.ExtractFields](cmd)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if f.URL == "" {
		return domain.Fail("Usage: /extract <url> [questions...]"), nil
	}
	if u, perr := url.Parse(f.URL); perr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.Fail(fmt.Sprintf("That doesn't look like a web address: %s", f.URL)), nil
	}
	if h.deps.Fetcher == nil {
		return domain.Fail("Page extraction is not available right now."), nil
	}
	log := h.deps.logger().With(zap.String("url", f.URL))

	raw, err := h.deps.Fetcher.Fetch(ctx, f.URL)
	if err != nil {
		log.Warn("fetch failed", zap.Error(err))
		reason := "the page could not be reached"
		var fe *fetch.Error
		if errors.As(err, &fe) {
			reason = fe.UserMessage()
		}
		return domain.Fail(fmt.Sprintf("Failed to fetch %s: %s.", f.URL, reason)), nil
	}

	text := fetch.Reduce(raw)
	in := summarize.Input{
		URL:       f.URL,
		Title:     fetch.Title(raw, text),
		Text:      text,
		Questions: f.Questions,
	}
	summarizer := h.deps.Summarizer
	if summarizer == nil {
		summarizer = summarize.Rules{}
	}
	sum, err := summarizer.Summarize(ctx, in)
	if err != nil || sum.Content == "" {
		log.Warn("summarizer returned nothing, using rules", zap.Error(err))
		sum, _ = summarize.Rules{}.Summarize(ctx, in)
	}

	id, fail := h.deps.persist(ctx, &domain.Artifact{
		Owner:   senderOf(req),
		Command: "extract",
		Title:   sum.Title,
		Content: sum.Content,
		Metadata: map[string]any{
			"source":    f.URL,
			"keyPoints": sum.KeyPoints,
			"questions": f.Questions,
		},
	})
	if fail != nil {
		return *fail, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🔗 Extracted %s\n", f.URL)
	for _, p := range sum.KeyPoints {
		sb.WriteString("• " + p + "\n")
	}
	res := domain.Ok(strings.TrimRight(sb.String(), "\n"))
	res.URL = h.deps.artifactURL("memo", id)
	res.Data = map[string]any{"id": id, "title": sum.Title, "keyPoints": sum.KeyPoints}
	return res, nil
}
