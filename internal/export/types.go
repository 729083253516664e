// Package export renders a post as a standalone HTML page and prints it to PDF.
package export

import (
	"errors"
	"html/template"
)

// Page is everything a rendered post shows.
type Page struct {
	Title    string
	User     string
	Released string
	Image    string
	// Body is author-supplied markup and is rendered unescaped.
	Body     template.HTML
	Comments []Comment
}

type Comment struct {
	ID      string
	User    string
	Text    string
	Replies []Comment
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
