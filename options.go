package newsletter

import (
	"time"

	"github.com/sirupsen/logrus"
)

type BackendOption func(o *backendOptions)

type backendOptions struct {
	logger       logrus.FieldLogger
	policy       ErrorPolicy
	failSilently bool
	now          func() time.Time

	fromEmail        string
	fromName         string
	defaultLanguage  string
	allowedLanguages []string
	postProcessors   PostProcessors
}

func defaultBackendOptions() backendOptions {
	return backendOptions{
		logger:          logrus.New(),
		now:             time.Now,
		defaultLanguage: "en",
	}
}

func SetLogger(logger logrus.FieldLogger) BackendOption {
	return func(o *backendOptions) {
		o.logger = logger
	}
}

func SetErrorPolicy(policy ErrorPolicy) BackendOption {
	return func(o *backendOptions) {
		o.policy = policy
	}
}

// SetFailSilently logs remote errors through the backend logger instead of
// returning them. An explicit SetErrorPolicy wins.
func SetFailSilently(silent bool) BackendOption {
	return func(o *backendOptions) {
		o.failSilently = silent
	}
}

func SetFromEmail(email string) BackendOption {
	return func(o *backendOptions) {
		o.fromEmail = email
	}
}

func SetFromName(name string) BackendOption {
	return func(o *backendOptions) {
		o.fromName = name
	}
}

// SetDefaultLanguage is the locale used for subscribers and campaigns
// without a language.
func SetDefaultLanguage(lang string) BackendOption {
	return func(o *backendOptions) {
		o.defaultLanguage = lang
	}
}

func SetAllowedLanguages(langs ...string) BackendOption {
	return func(o *backendOptions) {
		o.allowedLanguages = langs
	}
}

func SetPostProcessors(processors ...PostProcessor) BackendOption {
	return func(o *backendOptions) {
		o.postProcessors = processors
	}
}

func SetClock(now func() time.Time) BackendOption {
	return func(o *backendOptions) {
		o.now = now
	}
}

func newBackendOptions(options []BackendOption) backendOptions {
	o := defaultBackendOptions()

	for _, option := range options {
		option(&o)
	}

	if o.policy == nil {
		if o.failSilently {
			o.policy = FailSilently(o.logger)
		} else {
			o.policy = FailLoudly()
		}
	}

	return o
}

func (o backendOptions) localeFor(lang string) string {
	if lang == "" {
		return o.defaultLanguage
	}

	return lang
}

func (o backendOptions) langAllowed(lang string) bool {
	return lang == "" || len(o.allowedLanguages) == 0 || containsLang(o.allowedLanguages, lang)
}
