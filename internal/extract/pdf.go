package extract

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/nadavhl/secondbrain/internal/storage"
)

// extractPDF downloads a PDF and pulls its plain text. The filename
// stands in for a title; PDFs rarely carry one worth showing.
func (e *Extractor) extractPDF(ctx context.Context, u *url.URL) Result {
	res := Result{ContentType: storage.SourcePDF, Meta: map[string]string{}}
	if name := strings.TrimSuffix(path.Base(u.Path), ".pdf"); name != "" && name != "." {
		res.Title = strings.ReplaceAll(strings.ReplaceAll(name, "-", " "), "_", " ")
	}

	body, err := e.fetch(ctx, u.String(), nil)
	if err != nil {
		e.log.Debug("pdf fetch failed", "url", u.String(), "error", err)
		return res
	}

	text, err := pdfText(body)
	if err != nil {
		e.log.Debug("pdf parse failed", "url", u.String(), "error", err)
		return res
	}

	res.Text = truncate(collapseWhitespace(text), webTextCap)
	return res
}

func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	r, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	text, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(text), nil
}
