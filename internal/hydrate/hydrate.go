// Package hydrate replaces inline base64 images in question text with
// uploaded image URLs.
package hydrate

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Uploader is the image store side of hydration.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}

var dataImageRe = regexp.MustCompile(`!\[([^\]]*)\]\(data:image/([a-zA-Z0-9.+-]+);base64,([^)]*)\)`)

type Hydrator struct {
	up  Uploader
	log logrus.FieldLogger
	now func() time.Time
}

func New(up Uploader, log logrus.FieldLogger) *Hydrator {
	return &Hydrator{up: up, log: log, now: time.Now}
}

type occurrence struct {
	start, end int
	alt        string
	url        string
}

// Hydrate uploads every inline data-URI image in text, one at a time, and
// returns text with each uploaded image rewritten to ![alt](url). Images
// that fail to decode or upload are left as they were.
func (h *Hydrator) Hydrate(ctx context.Context, text string) string {
	if !strings.Contains(text, "data:image/") {
		return text
	}
	locs := dataImageRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text
	}

	var done []occurrence
	for _, m := range locs {
		alt := text[m[2]:m[3]]
		subtype := text[m[4]:m[5]]
		payload := text[m[6]:m[7]]
		filename := h.filename(subtype)
		fields := logrus.Fields{"filename": filename, "subtype": subtype}

		data, err := decode(payload)
		if err != nil {
			h.log.WithError(err).WithFields(fields).Warn("inline image is not valid base64; left in place")
			continue
		}
		url, err := h.up.Upload(ctx, data, filename)
		if err != nil {
			h.log.WithError(err).WithFields(fields).Warn("inline image upload failed; left in place")
			continue
		}
		done = append(done, occurrence{start: m[0], end: m[1], alt: alt, url: url})
	}
	if len(done) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, o := range done {
		b.WriteString(text[last:o.start])
		fmt.Fprintf(&b, "![%s](%s)", o.alt, o.url)
		last = o.end
	}
	b.WriteString(text[last:])
	return b.String()
}

// HydrateAll applies Hydrate to each element in order.
func (h *Hydrator) HydrateAll(ctx context.Context, texts []string) []string {
	if texts == nil {
		return nil
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = h.Hydrate(ctx, t)
	}
	return out
}

func (h *Hydrator) filename(subtype string) string {
	return fmt.Sprintf("%d-%s.%s", h.now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8], Extension(subtype))
}

// Extension maps an image MIME subtype to a file extension.
func Extension(subtype string) string {
	switch s := strings.ToLower(subtype); s {
	case "jpeg":
		return "jpg"
	case "svg+xml":
		return "svg"
	default:
		return s
	}
}

func decode(payload string) ([]byte, error) {
	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image payload")
	}
	return data, nil
}
