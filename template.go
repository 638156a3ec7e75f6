package newsletter

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"io/fs"
	"path"
	"strings"
	texttemplate "text/template"

	"github.com/pkg/errors"
)

const (
	HtmlTemplate = "newsletter_raw_detail.html"
	TextTemplate = "newsletter_raw_detail.txt"
)

//go:embed templates/*
var defaultTemplates embed.FS

// TemplateData is handed to the renderer. Locale is the language the content
// must be rendered in; renderers never read it from ambient state.
type TemplateData struct {
	Locale     string
	List       NewsletterList
	Newsletter Newsletter
	Items      []NewsletterItem
	Subscriber *Subscriber
}

type Renderer interface {
	Render(name string, data TemplateData) (string, error)
}

type RendererOption func(r *TemplateRenderer)

// SetTemplateFuncMap adds functions available to both html and text templates.
func SetTemplateFuncMap(funcs map[string]interface{}) RendererOption {
	return func(r *TemplateRenderer) {
		for name, fn := range funcs {
			r.funcs[name] = fn
		}
	}
}

// SetTranslations registers the strings returned by the "t" template function,
// keyed by locale then message key.
func SetTranslations(translations map[string]map[string]string) RendererOption {
	return func(r *TemplateRenderer) {
		r.translations = translations
	}
}

func SetFallbackLocale(locale string) RendererOption {
	return func(r *TemplateRenderer) {
		r.fallbackLocale = locale
	}
}

// TemplateRenderer renders *.html files with html/template and *.txt files
// with text/template.
type TemplateRenderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template

	funcs          map[string]interface{}
	translations   map[string]map[string]string
	fallbackLocale string
}

// NewTemplateRenderer parses every template in fsys. A nil fsys uses the
// templates shipped with the package.
func NewTemplateRenderer(fsys fs.FS, options ...RendererOption) (*TemplateRenderer, error) {
	if fsys == nil {
		sub, err := fs.Sub(defaultTemplates, "templates")
		if err != nil {
			return nil, err
		}

		fsys = sub
	}

	r := &TemplateRenderer{
		funcs:          map[string]interface{}{},
		fallbackLocale: "en",
	}

	for _, option := range options {
		option(r)
	}

	r.funcs["t"] = r.translate

	r.html = htmltemplate.New("").Funcs(htmltemplate.FuncMap(r.funcs))
	r.text = texttemplate.New("").Funcs(texttemplate.FuncMap(r.funcs))

	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}

		switch path.Ext(name) {
		case ".html":
			_, err = r.html.New(name).Parse(string(body))
		case ".txt":
			_, err = r.text.New(name).Parse(string(body))
		}

		return errors.Wrapf(err, "failed to parse template %s", name)
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

func (r *TemplateRenderer) Render(name string, data TemplateData) (string, error) {
	out := &bytes.Buffer{}

	var err error
	switch path.Ext(name) {
	case ".html":
		err = r.html.ExecuteTemplate(out, name, data)
	case ".txt":
		err = r.text.ExecuteTemplate(out, name, data)
	default:
		return "", errors.Errorf("unsupported template %s", name)
	}

	if err != nil {
		return "", errors.Wrapf(err, "failed to render %s", name)
	}

	return out.String(), nil
}

func (r *TemplateRenderer) translate(locale, key string) string {
	for _, candidate := range []string{locale, baseLocale(locale), r.fallbackLocale} {
		if msg, ok := r.translations[strings.ToLower(candidate)][key]; ok {
			return msg
		}
	}

	return key
}

func baseLocale(locale string) string {
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		return locale[:i]
	}

	return locale
}
