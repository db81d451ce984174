package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Configuration struct {
	ApiPort   string `mapstructure:"api_port" validate:"required"`
	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=text json"`

	Database    string `mapstructure:"database" validate:"oneof=sqlite3 postgres postgresql"`
	DbHost      string `mapstructure:"db_host"`
	DbPort      string `mapstructure:"db_port"`
	DbUser      string `mapstructure:"db_user"`
	DbName      string `mapstructure:"db_name"`
	DbPass      string `mapstructure:"db_pass"`
	DbSSLMode   string `mapstructure:"db_sslmode"`
	DbPath      string `mapstructure:"db_path"`
	DbMaxOpen   int    `mapstructure:"db_max_open_conns" validate:"gte=0"`
	AutoMigrate bool   `mapstructure:"automigrate"`

	Chatwoot struct {
		ApiURL      string        `mapstructure:"api_url" validate:"required,url"`
		ApiKey      string        `mapstructure:"api_key" validate:"required"`
		AdminApiKey string        `mapstructure:"admin_api_key"`
		AccountID   int           `mapstructure:"account_id" validate:"gt=0"`
		Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	} `mapstructure:"chatwoot"`

	Dify struct {
		ApiURL       string        `mapstructure:"api_url" validate:"required,url"`
		ApiKey       string        `mapstructure:"api_key" validate:"required"`
		ResponseMode string        `mapstructure:"response_mode" validate:"oneof=blocking streaming"`
		User         string        `mapstructure:"user" validate:"required"`
		Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	} `mapstructure:"dify"`

	Relay struct {
		MaxAttempts    int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
		RetryCountdown time.Duration `mapstructure:"retry_countdown" validate:"gte=0"`
		Workers        int           `mapstructure:"workers" validate:"min=1,max=256"`
		PollInterval   time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
		JobLease       time.Duration `mapstructure:"job_lease" validate:"gt=0"`
	} `mapstructure:"relay"`

	Queue struct {
		Driver    string `mapstructure:"driver" validate:"oneof=database memory amqp"`
		AmqpURL   string `mapstructure:"amqp_url" validate:"required_if=Driver amqp"`
		AmqpQueue string `mapstructure:"amqp_queue"`
		Capacity  int    `mapstructure:"capacity" validate:"gte=1"`
	} `mapstructure:"queue"`

	Teams struct {
		TTL             time.Duration `mapstructure:"ttl" validate:"gt=0"`
		RefreshSchedule string        `mapstructure:"refresh_schedule"`
	} `mapstructure:"teams"`

	Bot struct {
		SenderTypes   []string `mapstructure:"sender_types"`
		OpenedMessage string   `mapstructure:"opened_message" validate:"required"`
		ErrorMessage  string   `mapstructure:"error_message" validate:"required"`
	} `mapstructure:"bot"`

	Webhook struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"webhook"`

	Actions struct {
		Token string `mapstructure:"token"`
	} `mapstructure:"actions"`

	Cors struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`

	BestEffort struct {
		Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	} `mapstructure:"best_effort"`
}

const (
	DefaultOpenedMessage = "[bot] Your conversation has been handed over to an operator. Please wait for a reply."
	DefaultErrorMessage  = "[bot] Sorry, the assistant could not process your message. An operator will get back to you shortly."
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_port", "8000")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("database", "sqlite3")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_name", "chatwoot_dify")
	v.SetDefault("db_pass", "")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("db_path", "db/database.db")
	v.SetDefault("db_max_open_conns", 0)
	v.SetDefault("automigrate", true)

	v.SetDefault("chatwoot.api_url", "")
	v.SetDefault("chatwoot.api_key", "")
	v.SetDefault("chatwoot.admin_api_key", "")
	v.SetDefault("chatwoot.account_id", 1)
	v.SetDefault("chatwoot.timeout", 30*time.Second)

	v.SetDefault("dify.api_url", "")
	v.SetDefault("dify.api_key", "")
	v.SetDefault("dify.response_mode", "blocking")
	v.SetDefault("dify.user", "user")
	v.SetDefault("dify.timeout", 30*time.Second)

	v.SetDefault("relay.max_attempts", 3)
	v.SetDefault("relay.retry_countdown", 5*time.Second)
	v.SetDefault("relay.workers", 8)
	v.SetDefault("relay.poll_interval", time.Second)
	v.SetDefault("relay.job_lease", 10*time.Minute)

	v.SetDefault("queue.driver", "database")
	v.SetDefault("queue.amqp_url", "")
	v.SetDefault("queue.amqp_queue", "chatwoot_dify.jobs")
	v.SetDefault("queue.capacity", 1024)

	v.SetDefault("teams.ttl", 24*time.Hour)
	v.SetDefault("teams.refresh_schedule", "@every 6h")

	v.SetDefault("bot.sender_types", []string{"agent_bot"})
	v.SetDefault("bot.opened_message", DefaultOpenedMessage)
	v.SetDefault("bot.error_message", DefaultErrorMessage)

	v.SetDefault("webhook.secret", "")
	v.SetDefault("actions.token", "")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("best_effort.timeout", 30*time.Second)
}

// Load reads configuration from an optional file and the environment.
// Nested keys map to env vars with dots replaced by underscores, so
// dify.api_url is read from DIFY_API_URL.
func Load(path string) (Configuration, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Configuration{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return Configuration{}, fmt.Errorf("decode config: %w", err)
	}

	c.normalize()
	if err := c.Validate(); err != nil {
		return Configuration{}, err
	}
	return c, nil
}

func (c *Configuration) normalize() {
	c.Chatwoot.ApiURL = strings.TrimRight(strings.TrimSpace(c.Chatwoot.ApiURL), "/")
	c.Dify.ApiURL = strings.TrimRight(strings.TrimSpace(c.Dify.ApiURL), "/")
	if c.Chatwoot.AdminApiKey == "" {
		c.Chatwoot.AdminApiKey = c.Chatwoot.ApiKey
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.Queue.Driver = strings.ToLower(c.Queue.Driver)
}

// Validate reports every invalid field at once.
func (c Configuration) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// SentinelPrefixes returns the message prefixes the bot itself posts.
func (c Configuration) SentinelPrefixes() []string {
	return []string{c.Bot.OpenedMessage, c.Bot.ErrorMessage}
}
