package notify

import (
	"bytes"
	"sort"
	"text/template"

	"github.com/cockroachdb/errors"
)

const DefaultTemplate = `[{{.EventLabel}}] {{.Subject}}
Account: {{.AccountID}}
{{- range .Fields }}
{{ .Key }}: {{ .Value }}
{{- end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Event      string
	EventLabel string
	Subject    string
	AccountID  string
	Fields     []Field
}

// Field is one key/value line, rendered in key order.
type Field struct {
	Key   string
	Value string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("ledger-notification").Option("missingkey=zero").Parse(tpl)
	if err != nil {
		return nil, errors.Wrap(err, "notification template")
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to msg.
func (t *Template) Render(msg Message) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("notification template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, buildTemplateData(msg)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildTemplateData(msg Message) TemplateData {
	keys := make([]string, 0, len(msg.Fields))
	for key := range msg.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fields := make([]Field, 0, len(keys))
	for _, key := range keys {
		fields = append(fields, Field{Key: key, Value: msg.Fields[key]})
	}
	return TemplateData{
		Event:      string(msg.Event),
		EventLabel: eventLabel(msg.Event),
		Subject:    msg.Subject,
		AccountID:  msg.AccountID,
		Fields:     fields,
	}
}
