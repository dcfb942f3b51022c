package api

import (
	"embed"
	"html/template"
	"net/url"
)

//go:embed templates/*
var templateFS embed.FS

// newTemplates parses the HTML templates with custom functions.
func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"css": func(s string) template.CSS {
			return template.CSS(s)
		},
		"query": url.QueryEscape,
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}
