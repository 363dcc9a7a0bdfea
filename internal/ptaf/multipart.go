package ptaf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/google/uuid"
)

// FormField is a plain text part of a multipart form.
type FormField struct {
	Name  string
	Value string
}

// FilePart is the optional file attachment of a multipart form.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Content     io.Reader
}

// Form describes a multipart/form-data request body. Fields are written in order.
type Form struct {
	Fields []FormField
	File   *FilePart
}

// NewBoundary returns a browser-style multipart boundary.
func NewBoundary() string {
	return "----WebKitFormBoundary" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// PostMultipart encodes form as multipart/form-data and posts it to path.
func (c *Client) PostMultipart(ctx context.Context, path string, form Form) (*Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(NewBoundary()); err != nil {
		return nil, fmt.Errorf("set multipart boundary: %w", err)
	}

	for _, f := range form.Fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", f.Name, err)
		}
	}

	if form.File != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, form.File.Field, form.File.Filename))
		contentType := form.File.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("create file part: %w", err)
		}
		if _, err := io.Copy(part, form.File.Content); err != nil {
			return nil, fmt.Errorf("copy file %s: %w", form.File.Filename, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	return c.send(ctx, http.MethodPost, path, &buf, w.FormDataContentType())
}
