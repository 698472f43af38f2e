package email

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// md renders message bodies. Raw HTML in the source is escaped (WithUnsafe is not set).
var md = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// Template is a Markdown message body with text/template placeholders.
type Template struct {
	Subject string
	Body    string
}

// Render fills the template with data and converts the Markdown body to HTML.
// PRE: Subject and Body parse as text/template
// POST: Returns subject and HTML body
func (t Template) Render(data any) (subject, html string, err error) {
	subject, err = execute("subject", t.Subject, data)
	if err != nil {
		return "", "", err
	}
	body, err := execute("body", t.Body, data)
	if err != nil {
		return "", "", err
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(body), &buf); err != nil {
		return "", "", fmt.Errorf("render markdown: %w", err)
	}
	return strings.TrimSpace(subject), buf.String(), nil
}

func execute(name, src string, data any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s template: %w", name, err)
	}
	return buf.String(), nil
}
