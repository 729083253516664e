package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
)

// zeroWidthPrefix is stored ahead of every comment body.
const zeroWidthPrefix = "&zwnj;"

//go:embed templates/*.html
var templateFS embed.FS

var postTemplate = template.Must(
	template.New("post.html").
		Funcs(template.FuncMap{"displayText": displayText}).
		ParseFS(templateFS, "templates/post.html"),
)

// displayText drops the stored zero-width prefix; the rest is escaped by the template.
func displayText(text string) string {
	return strings.TrimPrefix(text, zeroWidthPrefix)
}

// RenderPageHTML renders the post page template.
func RenderPageHTML(page Page) (string, error) {
	var buf bytes.Buffer
	if err := postTemplate.Execute(&buf, page); err != nil {
		return "", err
	}
	return buf.String(), nil
}
