// Package localizer renders the list's automated replies from per-language
// template files.
//
// Templates live in a directory-per-language layout:
//
//	templates/
//	  en/
//	    subscribe-confirmation.tmpl
//	    unsubscribe-confirmation.tmpl
//	  de/
//	    ...
//
// Each file is a Go text/template; the first line is the subject, followed
// by a blank line and the body. A language without a given template falls
// back to the configured default language. A missing template in the
// default language is a deployment error and is caught by Validate at
// startup, never per message.
package localizer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/migadu/ezlist/consts"
	"github.com/migadu/ezlist/logger"
)

// Template keys known to the core.
const (
	TemplateSubscribeConfirmation   = "subscribe-confirmation"
	TemplateUnsubscribeConfirmation = "unsubscribe-confirmation"
	TemplateCommandHelp             = "command-help"
)

const templateExt = ".tmpl"

// Data carries the substitution values available to templates.
type Data struct {
	ListAddress string
	Sender      string
	Prefix      string
}

// Localizer resolves (language, template key) pairs to rendered
// subject/body text.
type Localizer struct {
	path        string
	defaultLang string
}

// New creates a Localizer reading templates under path, falling back to
// defaultLang when a requested language has no localized template.
func New(path, defaultLang string) *Localizer {
	return &Localizer{
		path:        filepath.Clean(path),
		defaultLang: defaultLang,
	}
}

// Render resolves the template for the requested language (or the default
// language if unavailable) and returns the rendered subject and body.
func (l *Localizer) Render(lang, key string, data Data) (subject, body string, err error) {
	tmplPath := l.templatePath(lang, key)
	if lang == "" || lang == l.defaultLang {
		tmplPath = l.templatePath(l.defaultLang, key)
	} else if _, statErr := os.Stat(tmplPath); statErr != nil {
		logger.Debug("Localizer: falling back to default language", "requested", lang, "key", key)
		tmplPath = l.templatePath(l.defaultLang, key)
	}

	raw, err := os.ReadFile(tmplPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", fmt.Errorf("%w: %s/%s", consts.ErrTemplateNotFound, l.defaultLang, key)
		}
		return "", "", fmt.Errorf("failed to read template %s: %w", tmplPath, err)
	}

	tmpl, err := template.New(key).Parse(string(raw))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse template %s: %w", tmplPath, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to render template %s: %w", tmplPath, err)
	}

	return splitSubjectBody(buf.String())
}

// Validate checks that the default language provides all the given template
// keys. Called at startup; a failure here is fatal.
func (l *Localizer) Validate(keys ...string) error {
	for _, key := range keys {
		tmplPath := l.templatePath(l.defaultLang, key)
		raw, err := os.ReadFile(tmplPath)
		if err != nil {
			return fmt.Errorf("%w: %s/%s (looked in %s)", consts.ErrTemplateNotFound, l.defaultLang, key, tmplPath)
		}
		if _, err := template.New(key).Parse(string(raw)); err != nil {
			return fmt.Errorf("template %s does not parse: %w", tmplPath, err)
		}
	}
	return nil
}

// Languages lists the language codes available in the template directory.
func (l *Localizer) Languages() ([]string, error) {
	entries, err := os.ReadDir(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template directory %s: %w", l.path, err)
	}
	var langs []string
	for _, e := range entries {
		if e.IsDir() {
			langs = append(langs, e.Name())
		}
	}
	return langs, nil
}

func (l *Localizer) templatePath(lang, key string) string {
	return filepath.Join(l.path, lang, key+templateExt)
}

// splitSubjectBody splits rendered template output into its subject line
// and body. The first line is the subject; one blank separator line after
// it is dropped.
func splitSubjectBody(rendered string) (string, string, error) {
	subject, body, found := strings.Cut(rendered, "\n")
	if !found {
		return strings.TrimSpace(rendered), "", nil
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", "", fmt.Errorf("template has an empty subject line")
	}
	body = strings.TrimPrefix(body, "\n")
	return subject, body, nil
}
