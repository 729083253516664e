package export

import (
	"context"
	"fmt"
	"time"
)

const defaultPDFTimeout = 30 * time.Second

// Service renders post pages and PDFs.
type Service struct {
	pdfTimeout time.Duration
}

func NewService() *Service {
	return &Service{pdfTimeout: defaultPDFTimeout}
}

func (s *Service) RenderPage(page Page) (string, error) {
	html, err := RenderPageHTML(page)
	if err != nil {
		return "", fmt.Errorf("render post page: %w", err)
	}
	return html, nil
}

// PDF prints the rendered page through headless Chrome.
func (s *Service) PDF(ctx context.Context, page Page) (*Result, error) {
	html, err := s.RenderPage(page)
	if err != nil {
		return nil, err
	}
	return printPDF(ctx, html, page.Title, s.pdfTimeout)
}
