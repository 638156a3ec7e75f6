package newsletter

import (
	"html"
	"io/fs"
	"path"

	"github.com/osteele/liquid"
	"github.com/pkg/errors"
)

// LiquidRenderer renders Liquid templates (*.liquid.html / *.liquid.txt are
// registered under the name without the ".liquid" part). Values bound to
// .html templates are HTML escaped.
type LiquidRenderer struct {
	engine    *liquid.Engine
	templates map[string]*liquid.Template
}

func NewLiquidRenderer(fsys fs.FS) (*LiquidRenderer, error) {
	r := &LiquidRenderer{
		engine:    liquid.NewEngine(),
		templates: map[string]*liquid.Template{},
	}

	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}

		tpl, parseErr := r.engine.ParseString(string(body))
		if parseErr != nil {
			return errors.Wrapf(parseErr, "failed to parse template %s", name)
		}

		r.templates[liquidName(name)] = tpl

		return nil
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

func (r *LiquidRenderer) Render(name string, data TemplateData) (string, error) {
	tpl, ok := r.templates[name]
	if !ok {
		return "", errors.Errorf("template %s does not exist", name)
	}

	escape := func(s string) string { return s }
	if path.Ext(name) == ".html" {
		escape = html.EscapeString
	}

	out, err := tpl.RenderString(liquidBindings(data, escape))
	if err != nil {
		return "", errors.Wrapf(err, "failed to render %s", name)
	}

	return out, nil
}

func liquidName(name string) string {
	ext := path.Ext(name)
	base := name[:len(name)-len(ext)]

	if path.Ext(base) == ".liquid" {
		return base[:len(base)-len(".liquid")] + ext
	}

	return name
}

func liquidBindings(data TemplateData, escape func(string) string) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(data.Items))
	for _, item := range data.Items {
		items = append(items, map[string]interface{}{
			"name":        escape(item.Name),
			"description": escape(item.Description),
			"image":       escape(item.Image),
			"url":         escape(item.URL),
			"position":    item.Position,
		})
	}

	bindings := map[string]interface{}{
		"locale": escape(data.Locale),
		"list": map[string]interface{}{
			"name": escape(data.List.Name),
			"slug": escape(data.List.Slug),
		},
		"newsletter": map[string]interface{}{
			"id":         data.Newsletter.ID,
			"name":       escape(data.Newsletter.Name),
			"headline":   escape(data.Newsletter.Headline),
			"conclusion": escape(data.Newsletter.Conclusion),
			"cover":      escape(data.Newsletter.Cover),
		},
		"items": items,
	}

	if data.Subscriber != nil {
		bindings["subscriber"] = map[string]interface{}{
			"email": escape(data.Subscriber.Email),
			"lang":  escape(data.Subscriber.Lang),
		}
	}

	return bindings
}
