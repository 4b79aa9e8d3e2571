package notify

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
	"time"

	"github.com/templui/storyline/internal/markdown"
)

//go:embed templates/*.md
var templateFS embed.FS

var emailTemplates = template.Must(template.ParseFS(templateFS, "templates/*.md"))

// email is a rendered message with a plain text and an HTML part.
type email struct {
	Subject string
	Text    string
	HTML    string
}

func renderEmail(md *markdown.Parser, name string, data any) (*email, error) {
	var src bytes.Buffer
	err := emailTemplates.ExecuteTemplate(&src, name, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s: %w", name, err)
	}

	html, meta, err := md.Parse(src.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}

	subject, _ := meta["subject"].(string)
	if subject == "" {
		return nil, fmt.Errorf("template %s has no subject", name)
	}

	return &email{
		Subject: subject,
		Text:    string(markdown.Body(src.Bytes())),
		HTML:    string(html),
	}, nil
}

func verificationCodeEmail(md *markdown.Parser, code string, ttl time.Duration, appName string) (*email, error) {
	return renderEmail(md, "verification_code.md", map[string]string{
		"AppName": appName,
		"Code":    code,
		"TTL":     humanizeTTL(ttl),
	})
}

func humanizeTTL(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		minutes := int(d / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return d.String()
}
