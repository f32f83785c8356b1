// Package render produces the aggregate page and the per-folder pages, and
// deploys the shared stylesheet.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed assets/site.css
var assets embed.FS

// CardView is one card prepared for a specific page. Body is sanitized,
// frame-rewritten markup. Href links the aggregate page to the card's
// folder page.
type CardView struct {
	ID        string
	Folder    string
	Title     string
	Href      string
	Thumbnail string
	Body      template.HTML
}

// AggregateData feeds the aggregate page.
type AggregateData struct {
	Title      string
	Stylesheet string
	Cards      []CardView
}

// FolderData feeds one per-folder page.
type FolderData struct {
	SiteTitle  string
	Stylesheet string
	BackLink   string
	Card       CardView
}

const aggregateTmpl = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="{{.Stylesheet}}">
</head>
<body class="aggregate-page">
<h1>{{.Title}}</h1>
<div class="cards">
{{- range .Cards}}
<div class="card" data-card-id="{{.ID}}" data-folder="{{.Folder}}">
<div class="card-head"><h2><a href="{{.Href}}">{{.Title}}</a></h2>
{{- if .Thumbnail}}<div class="thumb-wrap"><img class="thumb" src="{{.Thumbnail}}" alt="{{.Title}}"></div>{{end -}}
</div>
<div class="inner">{{.Body}}</div>
</div>
{{- end}}
</div>
</body>
</html>
`

const folderTmpl = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Card.Title}} · {{.SiteTitle}}</title>
<link rel="stylesheet" href="{{.Stylesheet}}">
</head>
<body class="folder-page">
<a class="back-link" href="{{.BackLink}}">← {{.SiteTitle}}</a>
<div class="card" data-card-id="{{.Card.ID}}" data-folder="{{.Card.Folder}}">
<div class="card-head"><h2>{{.Card.Title}}</h2>
{{- if .Card.Thumbnail}}<div class="thumb-wrap"><img class="thumb" src="{{.Card.Thumbnail}}" alt="{{.Card.Title}}"></div>{{end -}}
</div>
<div class="inner">{{.Card.Body}}</div>
</div>
</body>
</html>
`

var (
	aggregatePage = template.Must(template.New("aggregate").Parse(aggregateTmpl))
	folderPage    = template.Must(template.New("folder").Parse(folderTmpl))
)

// Aggregate renders the aggregate page.
func Aggregate(d AggregateData) ([]byte, error) {
	var buf bytes.Buffer
	if err := aggregatePage.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("render: aggregate: %w", err)
	}
	return buf.Bytes(), nil
}

// Folder renders one per-folder page.
func Folder(d FolderData) ([]byte, error) {
	var buf bytes.Buffer
	if err := folderPage.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("render: folder %s: %w", d.Card.Folder, err)
	}
	return buf.Bytes(), nil
}
