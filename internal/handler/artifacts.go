package handler

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"clawderous/internal/command"
	"clawderous/internal/dispatch"
	"clawderous/internal/domain"

	"go.uber.org/zap"
)

const maxTweetRunes = 280

// persist stores a and returns its id, or a failure result the caller can
// hand straight back.
func (d *Deps) persist(ctx context.Context, a *domain.Artifact) (string, *domain.ExecutionResult) {
	if d.Store == nil {
		res := domain.Fail("Storage is not available right now. Please try again later.")
		return "", &res
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = d.now().UnixMilli()
	}
	id, err := d.Store.Create(ctx, a)
	if err != nil {
		d.logger().Error("failed to create artifact",
			zap.String("command", a.Command), zap.String("owner", a.Owner), zap.Error(err))
		res := domain.Fail(fmt.Sprintf("Could not save your %s. Please try again later.", a.Command))
		return "", &res
	}
	return id, nil
}

type Memo struct{ deps *Deps }

func (h *Memo) Execute(ctx context.Context, cmd *command.Command, req *dispatch.Request) (domain.ExecutionResult, error) {
	f, err := fieldsOf[command.MemoFields](cmd)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if strings.TrimSpace(f.Content) == "" {
		return domain.Fail("Nothing to save. Usage: /memo [title] <content>, or put the content in the email body."), nil
	}

	id, fail := h.deps.persist(ctx, &domain.Artifact{
		Owner:    senderOf(req),
		Command:  "memo",
		Title:    f.Title,
		Content:  f.Content,
		Metadata: map[string]any{"source": "email", "subject": subjectOf(req)},
	})
	if fail != nil {
		return *fail, nil
	}

	msg := "📝 Memo saved!"
	if f.Title != "" {
		msg += fmt.Sprintf(" %q", f.Title)
	}
	res := domain.Ok(msg)
	res.URL = h.deps.artifactURL("memo", id)
	res.Data = map[string]any{"id": id}
	return res, nil
}

type Blog struct{ deps *Deps }

func (h *Blog) Execute(ctx context.Context, cmd *command.Command, req *dispatch.Request) (domain.ExecutionResult, error) {
	f, err := fieldsOf[command.BlogFields](cmd)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if f.Title == "" {
		return domain.Fail("Usage: /blog <title>, with the post in the email body."), nil
	}

	id, fail := h.deps.persist(ctx, &domain.Artifact{
		Owner:    senderOf(req),
		Command:  "blog",
		Title:    f.Title,
		Content:  BlogDocument(f.Title, f.Content, h.deps.now()),
		Metadata: map[string]any{"source": "email", "format": "markdown"},
	})
	if fail != nil {
		return *fail, nil
	}

	res := domain.Ok(fmt.Sprintf("✍️ Blog post published! %q", f.Title))
	res.URL = h.deps.artifactURL("blog", id)
	res.Data = map[string]any{"id": id}
	return res, nil
}

// BlogDocument renders a post with its front matter and footer.
func BlogDocument(title, body string, at time.Time) string {
	return fmt.Sprintf("---\ntitle: %q\ndate: %s\n---\n\n%s\n\n---\n*Posted via Clawderous 📧*\n",
		title, at.UTC().Format(time.RFC3339), strings.TrimSpace(body))
}

type Note struct{ deps *Deps }

func (h *Note) Execute(ctx context.Context, cmd *command.Command, req *dispatch.Request) (domain.ExecutionResult, error) {
	f, err := fieldsOf[command.ArgsFields](cmd)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	content := strings.TrimSpace(f.Body)
	if content == "" {
		content = strings.Join(f.Args, " ")
	}
	if content == "" {
		return domain.Fail("Nothing to note. Usage: /note <text>, or put the note in the email body."), nil
	}

	title := strings.Join(f.Args, " ")
	if title == "" {
		title = subjectOf(req)
	}
	filename := NoteFilename(title, h.deps.now())

	id, fail := h.deps.persist(ctx, &domain.Artifact{
		Owner:    senderOf(req),
		Command:  "note",
		Title:    title,
		Content:  content,
		Metadata: map[string]any{"filename": filename},
	})
	if fail != nil {
		return *fail, nil
	}

	res := domain.Ok("🗒️ Note saved: " + filename)
	res.URL = h.deps.artifactURL("note", id)
	res.Data = map[string]any{"id": id, "filename": filename}
	return res, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// NoteFilename is YYYY-MM-DD-<slug>.md, with "note" standing in for an
// empty slug.
func NoteFilename(title string, at time.Time) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	if slug == "" {
		slug = "note"
	}
	return at.UTC().Format("2006-01-02") + "-" + slug + ".md"
}

// Tweet records a draft; nothing is posted anywhere.
type Tweet struct{ deps *Deps }

func (h *Tweet) Execute(ctx context.Context, cmd *command.Command, req *dispatch.Request) (domain.ExecutionResult, error) {
	f, err := fieldsOf[command.ArgsFields](cmd)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	content := strings.Join(f.Args, " ")
	if content == "" {
		content = strings.TrimSpace(f.Body)
	}
	if content == "" {
		return domain.Fail("Nothing to tweet. Usage: /tweet <text>"), nil
	}
	if r := []rune(content); len(r) > maxTweetRunes {
		content = string(r[:maxTweetRunes])
	}

	id, fail := h.deps.persist(ctx, &domain.Artifact{
		Owner:   senderOf(req),
		Command: "tweet",
		Content: content,
	})
	if fail != nil {
		return *fail, nil
	}

	res := domain.Ok("🐦 Tweet drafted (not posted).")
	res.URL = h.deps.artifactURL("tweet", id)
	res.Data = map[string]any{"id": id, "content": content}
	return res, nil
}
