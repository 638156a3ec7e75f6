package newsletter

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// PostProcessor transforms rendered HTML before it is sent.
type PostProcessor func(html string) string

// PostProcessors are applied in order.
type PostProcessors []PostProcessor

func (p PostProcessors) Apply(html string) string {
	for _, process := range p {
		html = process(html)
	}

	return html
}

var hrefPattern = regexp.MustCompile(`href="([^"]*)"`)

func rewriteLinks(html string, rewrite func(link string) string) string {
	return hrefPattern.ReplaceAllStringFunc(html, func(match string) string {
		link := hrefPattern.FindStringSubmatch(match)[1]

		return `href="` + rewrite(link) + `"`
	})
}

// AddLinkParams appends query parameters to every absolute http(s) link,
// leaving parameters already present untouched. Typical use is campaign
// tracking (utm_source, utm_medium...).
func AddLinkParams(params map[string]string) PostProcessor {
	return func(html string) string {
		return rewriteLinks(html, func(link string) string {
			unescaped := strings.ReplaceAll(link, "&amp;", "&")

			u, err := url.Parse(unescaped)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return link
			}

			query := u.Query()
			for key, value := range params {
				if query.Get(key) == "" {
					query.Set(key, value)
				}
			}

			u.RawQuery = query.Encode()

			return strings.ReplaceAll(u.String(), "&", "&amp;")
		})
	}
}

// AbsoluteLinks resolves relative links against base.
func AbsoluteLinks(base string) PostProcessor {
	baseURL, err := url.Parse(base)

	return func(html string) string {
		if err != nil {
			return html
		}

		return rewriteLinks(html, func(link string) string {
			if link == "" || strings.HasPrefix(link, "#") || strings.HasPrefix(link, "mailto:") {
				return link
			}

			ref, err := url.Parse(link)
			if err != nil || ref.IsAbs() {
				return link
			}

			return baseURL.ResolveReference(ref).String()
		})
	}
}

// CollapseWhitespace removes blank lines and indentation.
func CollapseWhitespace() PostProcessor {
	return func(html string) string {
		lines := strings.Split(html, "\n")
		kept := lines[:0]

		for _, line := range lines {
			if line = strings.TrimSpace(line); line != "" {
				kept = append(kept, line)
			}
		}

		return strings.Join(kept, "\n")
	}
}

// PostProcessorFactory builds a post-processor from configuration params.
type PostProcessorFactory func(params map[string]string) (PostProcessor, error)

var postProcessorFactories = map[string]PostProcessorFactory{
	"link_params": func(params map[string]string) (PostProcessor, error) {
		return AddLinkParams(params), nil
	},
	"absolute_links": func(params map[string]string) (PostProcessor, error) {
		base := params["base"]
		if _, err := url.Parse(base); err != nil || base == "" {
			return nil, errors.Wrap(ImproperlyConfiguredErr, "absolute_links requires a valid base url")
		}

		return AbsoluteLinks(base), nil
	},
	"collapse_whitespace": func(map[string]string) (PostProcessor, error) {
		return CollapseWhitespace(), nil
	},
}

// RegisterPostProcessor makes a post-processor available to NewPostProcessor.
func RegisterPostProcessor(name string, factory PostProcessorFactory) {
	postProcessorFactories[name] = factory
}

// NewPostProcessor resolves a configured post-processor by name.
func NewPostProcessor(name string, params map[string]string) (PostProcessor, error) {
	factory, ok := postProcessorFactories[name]
	if !ok {
		return nil, errors.Wrapf(ImproperlyConfiguredErr, "unknown post processor %q", name)
	}

	return factory(params)
}
