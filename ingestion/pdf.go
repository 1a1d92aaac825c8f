// Package ingestion turns uploaded PDF documents into tagged text chunks
// ready for embedding.
package ingestion

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractFile extracts the plain text of the PDF at path, page by page.
// Pages without extractable text are skipped; the remaining pages are
// joined by a newline in page order.
func ExtractFile(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	return extractPages(reader)
}

// ExtractBytes extracts the plain text of an in-memory PDF.
func ExtractBytes(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	return extractPages(reader)
}

func extractPages(reader *pdf.Reader) (string, error) {
	pages := make([]string, 0, reader.NumPage())

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			// Individual pages can be malformed without ruining the
			// document; keep whatever the other pages yield.
			continue
		}

		content = normalizePlainText(content)
		if strings.TrimSpace(content) == "" {
			continue
		}
		pages = append(pages, content)
	}

	return strings.Join(pages, "\n"), nil
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
