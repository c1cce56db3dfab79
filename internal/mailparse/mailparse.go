// Package mailparse turns raw RFC 5322 messages and header blocks into the
// pieces the canonical email model needs.
package mailparse

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"clawderous/internal/domain"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

type Message struct {
	MessageID string
	From      string
	To        string
	Subject   string
	Date      time.Time
	Text      string
	HTML      string
	Headers   map[string]string
}

// Parse reads a full MIME message. Only inline text/plain and text/html
// parts are kept; attachments are skipped.
func Parse(r io.Reader, recipientHeaders ...string) (*Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}
	defer mr.Close()

	header := mr.Header
	msg := &Message{Headers: flatten(header.Header.Header)}

	if id, err := header.MessageID(); err == nil && id != "" {
		msg.MessageID = "<" + id + ">"
	}

	if fromList, err := header.AddressList("From"); err == nil && len(fromList) > 0 {
		msg.From = fromList[0].Address
	}
	msg.To = recipient(header, recipientHeaders)

	if subject, err := header.Subject(); err == nil {
		msg.Subject = subject
	}
	if date, err := header.Date(); err == nil {
		msg.Date = date
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		b, _ := io.ReadAll(p.Body)
		t, _, _ := h.ContentType()
		switch t {
		case "text/plain":
			msg.Text += string(b)
		case "text/html":
			msg.HTML += string(b)
		}
	}

	return msg, nil
}

// recipient prefers delivery headers over To, since catch-all mailboxes
// receive mail addressed to many names.
func recipient(h mail.Header, preferred []string) string {
	for _, key := range preferred {
		if val := strings.TrimSpace(h.Get(key)); val != "" {
			return domain.NormalizeAddress(val)
		}
	}
	toList, _ := h.AddressList("To")
	for _, addr := range toList {
		if addr.Address != "" {
			return domain.NormalizeAddress(addr.Address)
		}
	}
	return ""
}

// ParseHeaderBlock parses a raw "Key: value" header block, as vendors post
// it in form fields, into a map keyed by lowercased name. A block with a
// malformed line yields an empty map.
func ParseHeaderBlock(block string) map[string]string {
	block = strings.ReplaceAll(block, "\r\n", "\n")
	block = strings.ReplaceAll(block, "\n", "\r\n")
	if !strings.HasSuffix(block, "\r\n\r\n") {
		block = strings.TrimRight(block, "\r\n") + "\r\n\r\n"
	}
	h, err := textproto.ReadHeader(bufio.NewReader(strings.NewReader(block)))
	if err != nil {
		return map[string]string{}
	}
	return flatten(h)
}

func flatten(h textproto.Header) map[string]string {
	out := make(map[string]string)
	fields := h.Fields()
	for fields.Next() {
		key := domain.NormalizeHeaderKey(fields.Key())
		if _, seen := out[key]; seen {
			continue
		}
		out[key] = fields.Value()
	}
	return out
}
