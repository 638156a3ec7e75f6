package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds everything needed to assemble a newsletter application.
type Config struct {
	Backend   string `yaml:"backend"`
	Transport string `yaml:"transport"`

	FromEmail        string   `yaml:"from_email"`
	FromName         string   `yaml:"from_name"`
	DefaultLanguage  string   `yaml:"default_language"`
	AllowedLanguages []string `yaml:"allowed_languages"`
	FailSilently     bool     `yaml:"fail_silently"`
	PaginateBy       int      `yaml:"paginate_by"`

	Templates      TemplatesConfig       `yaml:"templates"`
	PostProcessors []PostProcessorConfig `yaml:"post_processors"`
	Workers        WorkersConfig         `yaml:"workers"`

	Mailjet   MailjetConfig   `yaml:"mailjet"`
	Mailchimp MailchimpConfig `yaml:"mailchimp"`
	Mailgun   MailgunConfig   `yaml:"mailgun"`
	SES       SESConfig       `yaml:"ses"`

	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
}

type TemplatesConfig struct {
	// Engine is "html" for the go templates or "liquid".
	Engine string `yaml:"engine"`

	// Dir overrides the embedded templates when set.
	Dir          string                       `yaml:"dir"`
	Translations map[string]map[string]string `yaml:"translations"`
}

type PostProcessorConfig struct {
	Name   string            `yaml:"name"`
	Params map[string]string `yaml:"params"`
}

type WorkersConfig struct {
	Count          int    `yaml:"count"`
	MaxRetries     uint64 `yaml:"max_retries"`
	BackoffSeconds int    `yaml:"backoff_seconds"`
}

func (c WorkersConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

type MailjetConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

type MailchimpConfig struct {
	APIKey string `yaml:"api_key"`
}

type MailgunConfig struct {
	Domain  string `yaml:"domain"`
	APIKey  string `yaml:"api_key"`
	ReplyTo string `yaml:"reply_to"`
}

type SESConfig struct {
	Region           string `yaml:"region"`
	ConfigurationSet string `yaml:"configuration_set"`
}

type DatabaseConfig struct {
	// URL is a postgres url. Without it every store is kept in memory.
	URL string `yaml:"url"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used for every unset value.
func Default() Config {
	return Config{
		Backend:         "simple",
		Transport:       "mailgun",
		FromEmail:       "noreply@example.com",
		FromName:        "Newsletter",
		DefaultLanguage: "en",
		PaginateBy:      9,
		Templates: TemplatesConfig{
			Engine: "html",
		},
		Workers: WorkersConfig{
			Count:          1,
			MaxRetries:     3,
			BackoffSeconds: 60,
		},
		SES: SESConfig{
			Region: "eu-west-1",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Parse decodes data over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse configuration")
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Load reads and parses the configuration file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read configuration %s", path)
	}

	return Parse(data)
}

// LoadFromEnv loads the configuration file then applies NEWSLETTER_*
// environment overrides, reading a .env file first when present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults restores the defaults zeroed by an explicit empty value.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Backend == "" {
		c.Backend = defaults.Backend
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = defaults.DefaultLanguage
	}
	if c.PaginateBy <= 0 {
		c.PaginateBy = defaults.PaginateBy
	}
	if c.Templates.Engine == "" {
		c.Templates.Engine = defaults.Templates.Engine
	}
	if c.Workers.Count <= 0 {
		c.Workers.Count = defaults.Workers.Count
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
}

func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"NEWSLETTER_BACKEND":            &c.Backend,
		"NEWSLETTER_TRANSPORT":          &c.Transport,
		"NEWSLETTER_FROM_EMAIL":         &c.FromEmail,
		"NEWSLETTER_FROM_NAME":          &c.FromName,
		"NEWSLETTER_DEFAULT_LANGUAGE":   &c.DefaultLanguage,
		"NEWSLETTER_TEMPLATES_ENGINE":   &c.Templates.Engine,
		"NEWSLETTER_TEMPLATES_DIR":      &c.Templates.Dir,
		"NEWSLETTER_MAILJET_API_KEY":    &c.Mailjet.APIKey,
		"NEWSLETTER_MAILJET_API_SECRET": &c.Mailjet.APISecret,
		"NEWSLETTER_MAILCHIMP_API_KEY":  &c.Mailchimp.APIKey,
		"NEWSLETTER_MAILGUN_DOMAIN":     &c.Mailgun.Domain,
		"NEWSLETTER_MAILGUN_API_KEY":    &c.Mailgun.APIKey,
		"NEWSLETTER_SES_REGION":         &c.SES.Region,
		"NEWSLETTER_DATABASE_URL":       &c.Database.URL,
		"NEWSLETTER_SERVER_ADDR":        &c.Server.Addr,
	}

	for key, target := range strs {
		if v := getenv(key); v != "" {
			*target = v
		}
	}

	if v := getenv("NEWSLETTER_ALLOWED_LANGUAGES"); v != "" {
		c.AllowedLanguages = strings.Split(v, ",")
	}

	if v := getenv("NEWSLETTER_FAIL_SILENTLY"); v != "" {
		silent, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "invalid NEWSLETTER_FAIL_SILENTLY")
		}

		c.FailSilently = silent
	}

	ints := map[string]*int{
		"NEWSLETTER_PAGINATE_BY":     &c.PaginateBy,
		"NEWSLETTER_WORKERS":         &c.Workers.Count,
		"NEWSLETTER_BACKOFF_SECONDS": &c.Workers.BackoffSeconds,
	}

	for key, target := range ints {
		v := getenv(key)
		if v == "" {
			continue
		}

		parsed, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", key)
		}

		*target = parsed
	}

	if v := getenv("NEWSLETTER_MAX_RETRIES"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.Wrap(err, "invalid NEWSLETTER_MAX_RETRIES")
		}

		c.Workers.MaxRetries = parsed
	}

	c.applyDefaults()

	return nil
}
