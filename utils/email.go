package utils

import (
	"bytes"
	"fmt"
	"html/template"
)

// RenderTemplate executes an in-source HTML template with the provided data.
// Templates are compiled into the binary rather than read from disk so the
// notification path has no runtime file dependency.
func RenderTemplate(name, body string, data any) (string, error) {
	tpl, err := template.New(name).Parse(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var tplBody bytes.Buffer
	if err := tpl.Execute(&tplBody, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return tplBody.String(), nil
}
