// Package web holds the single-page drawing UI.
package web

import (
	_ "embed"
	"html/template"
)

//go:embed index.html
var indexHTML string

// Index renders index.html with a Page.
var Index = template.Must(template.New("index").Parse(indexHTML))

type Page struct {
	CanvasSize int
}
