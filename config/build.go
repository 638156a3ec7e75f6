package config

import (
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/mailgun/mailgun-go/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/interactive-solutions/go-newsletter"
	sesprovider "github.com/interactive-solutions/go-newsletter/provider/aws"
	mailchimpprovider "github.com/interactive-solutions/go-newsletter/provider/mailchimp"
	mailgunprovider "github.com/interactive-solutions/go-newsletter/provider/mailgun"
	"github.com/interactive-solutions/go-newsletter/provider/mailjet"
)

// NewSelector returns a selector knowing every backend of this module, the
// vendor ones built from cfg credentials.
func NewSelector(cfg *Config) *newsletter.Selector {
	selector := newsletter.NewSelector()

	selector.Register(newsletter.BackendMailjet, func(deps newsletter.Dependencies) (newsletter.Backend, error) {
		adapter, err := mailjet.New(cfg.Mailjet.APIKey, cfg.Mailjet.APISecret)
		if err != nil {
			return nil, err
		}

		return newsletter.NewCampaignBackend(adapter, deps.Stores, deps.Renderer, deps.Options...)
	})

	selector.Register(newsletter.BackendMailchimp, func(deps newsletter.Dependencies) (newsletter.Backend, error) {
		adapter, err := mailchimpprovider.New(cfg.Mailchimp.APIKey)
		if err != nil {
			return nil, err
		}

		return newsletter.NewCampaignBackend(adapter, deps.Stores, deps.Renderer, deps.Options...)
	})

	return selector
}

// BackendOptions translates cfg into backend options.
func (c *Config) BackendOptions(logger logrus.FieldLogger) ([]newsletter.BackendOption, error) {
	processors, err := c.buildPostProcessors()
	if err != nil {
		return nil, err
	}

	options := []newsletter.BackendOption{
		newsletter.SetLogger(logger),
		newsletter.SetFromEmail(c.FromEmail),
		newsletter.SetFromName(c.FromName),
		newsletter.SetDefaultLanguage(c.DefaultLanguage),
		newsletter.SetFailSilently(c.FailSilently),
		newsletter.SetPostProcessors(processors...),
	}

	if len(c.AllowedLanguages) > 0 {
		options = append(options, newsletter.SetAllowedLanguages(c.AllowedLanguages...))
	}

	return options, nil
}

func (c *Config) buildPostProcessors() ([]newsletter.PostProcessor, error) {
	processors := make([]newsletter.PostProcessor, 0, len(c.PostProcessors))

	for _, pc := range c.PostProcessors {
		processor, err := newsletter.NewPostProcessor(pc.Name, pc.Params)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid post processor %q", pc.Name)
		}

		processors = append(processors, processor)
	}

	return processors, nil
}

// BuildRenderer returns the renderer of the configured template engine.
func (c *Config) BuildRenderer() (newsletter.Renderer, error) {
	switch strings.ToLower(c.Templates.Engine) {
	case "", "html":
		var options []newsletter.RendererOption

		if len(c.Templates.Translations) > 0 {
			options = append(options, newsletter.SetTranslations(c.Templates.Translations))
		}

		options = append(options, newsletter.SetFallbackLocale(c.DefaultLanguage))

		if c.Templates.Dir == "" {
			return newsletter.NewTemplateRenderer(nil, options...)
		}

		return newsletter.NewTemplateRenderer(os.DirFS(c.Templates.Dir), options...)

	case "liquid":
		if c.Templates.Dir == "" {
			return nil, errors.Wrap(newsletter.ImproperlyConfiguredErr, "the liquid engine requires a templates dir")
		}

		return newsletter.NewLiquidRenderer(os.DirFS(c.Templates.Dir))

	default:
		return nil, errors.Wrapf(newsletter.ImproperlyConfiguredErr, "unknown template engine %q", c.Templates.Engine)
	}
}

// BuildTransport returns the email transport used by the simple backend.
func (c *Config) BuildTransport() (newsletter.EmailTransport, error) {
	switch strings.ToLower(c.Transport) {
	case "mailgun":
		if c.Mailgun.Domain == "" || c.Mailgun.APIKey == "" {
			return nil, errors.Wrap(newsletter.ImproperlyConfiguredErr, "mailgun requires a domain and an api key")
		}

		var options []mailgunprovider.MailgunOption
		if c.Mailgun.ReplyTo != "" {
			options = append(options, mailgunprovider.SetReplyTo(c.Mailgun.ReplyTo))
		}

		return mailgunprovider.NewMailgunTransport(mailgun.NewMailgun(c.Mailgun.Domain, c.Mailgun.APIKey), options...), nil

	case "ses":
		sess, err := session.NewSession(&aws.Config{Region: aws.String(c.SES.Region)})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create aws session")
		}

		return sesprovider.NewSesTransport(sess, c.SES.ConfigurationSet), nil

	default:
		return nil, errors.Wrapf(newsletter.ImproperlyConfiguredErr, "unknown transport %q", c.Transport)
	}
}

// BuildBackend resolves the configured backend. Campaign backends deliver
// through their vendor so no transport is built for them.
func (c *Config) BuildBackend(stores newsletter.Stores, renderer newsletter.Renderer, logger logrus.FieldLogger) (newsletter.Backend, error) {
	options, err := c.BackendOptions(logger)
	if err != nil {
		return nil, err
	}

	deps := newsletter.Dependencies{
		Stores:   stores,
		Renderer: renderer,
		Options:  options,
	}

	kind := newsletter.BackendKind(strings.ToLower(c.Backend))
	if kind == newsletter.BackendSimple {
		transport, err := c.BuildTransport()
		if err != nil {
			return nil, err
		}

		deps.Transport = transport
	}

	return NewSelector(c).Resolve(kind, deps)
}
