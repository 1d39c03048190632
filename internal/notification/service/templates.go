package service

import (
	"bytes"
	"html/template"
)

var emailTemplate = template.Must(template.New("notification").Parse(`<!doctype html>
<html>
<body style="font-family: sans-serif; color: #1f2933;">
  {{if .Name}}<p>Hi {{.Name}},</p>{{end}}
  <h2 style="font-size: 18px;">{{.Title}}</h2>
  <p>{{.Body}}</p>
  <p style="color: #7b8794; font-size: 12px;">You are receiving this because you own a school on the platform.</p>
</body>
</html>`))

type emailView struct {
	Name  string
	Title string
	Body  string
}

func renderEmail(view emailView) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}
