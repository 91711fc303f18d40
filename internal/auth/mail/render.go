package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl"))
)

type templateData struct {
	To      string
	Code    string
	URL     string
	Expires string
	Year    int
}

// Render builds the subject and both bodies for m.
func Render(m Message) (Email, error) {
	subject, ok := subjects[m.Template]
	if !ok {
		return Email{}, fmt.Errorf("mail: unknown template %q", m.Template)
	}

	data := templateData{
		To:      m.To,
		Code:    m.Code,
		URL:     m.URL,
		Expires: humanDuration(m.ExpiresIn),
		Year:    time.Now().Year(),
	}

	var html, text bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, string(m.Template), data); err != nil {
		return Email{}, fmt.Errorf("render html %s: %w", m.Template, err)
	}
	if err := textTemplates.ExecuteTemplate(&text, string(m.Template), data); err != nil {
		return Email{}, fmt.Errorf("render text %s: %w", m.Template, err)
	}

	return Email{To: m.To, Subject: subject, HTML: html.String(), Text: text.String()}, nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d.Round(time.Second)/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
