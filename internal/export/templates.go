package export

import (
	"bytes"
	"html/template"
)

// SafeHTML marks a string as pre-sanitized HTML. Only section bodies with
// contentType "html" go through it, and those are sanitized on write.
func SafeHTML(s interface{}) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

var lessonTemplate = template.Must(template.New("lesson").Funcs(template.FuncMap{
	"safeHTML": SafeHTML,
}).Parse(lessonTemplateHTML))

// TemplateData holds data for lesson template rendering
type TemplateData struct {
	Title      string
	CourseName string
	VideoURL   string
	Sections   []TemplateSection
}

// TemplateSection holds one lesson section for the template
type TemplateSection struct {
	Title       string
	ContentType string
	Content     string
	ListItems   []string
}

// RenderLessonHTML renders the lesson template with provided data
func RenderLessonHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := lessonTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const lessonTemplateHTML = `<!DOCTYPE html>
<html lang="vi">
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    h2 { margin-top: 1.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    ul { margin: 0.5rem 0 0.5rem 1.25rem; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.CourseName}}{{if .VideoURL}} | Video: {{.VideoURL}}{{end}}</div>
  {{range .Sections}}
  <section>
    {{if .Title}}<h2>{{.Title}}</h2>{{end}}
    {{if eq .ContentType "list"}}
    <ul>
      {{range .ListItems}}<li>{{.}}</li>{{end}}
    </ul>
    {{else if eq .ContentType "html"}}
    <div>{{.Content | safeHTML}}</div>
    {{else}}
    <p>{{.Content}}</p>
    {{end}}
  </section>
  {{end}}
</body>
</html>`
