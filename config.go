package main

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cyverse-de/helpdesk-notifier/channels"
	"github.com/cyverse-de/helpdesk-notifier/common"
)

// envPrefix is the prefix of environment variables that override configuration settings. For example,
// HELPDESK_TELEGRAM_TOKEN overrides telegram.token.
const envPrefix = "HELPDESK"

const defaultConfig = `
db:
  uri: postgres://helpdesk@localhost:5432/helpdesk?sslmode=disable

amqp:
  uri: ""
  exchange:
    name: helpdesk
    type: topic
  queue: helpdesk_notifier

http:
  listen: ":8080"
  allowed_origins: ["*"]

telegram:
  token: ""
  bot_username: ""
  poll_timeout: 10s
  rate_per_sec: 25

email:
  smtp_host: ""
  smtp_port: 587
  username: ""
  password: ""
  from: ""
  code_ttl: 0s

dispatch:
  channel_timeout: 15s

templates:
  strict: false

log:
  level: info
`

// serviceConfig holds the settings the service reads at startup.
type serviceConfig struct {
	DatabaseURI    string
	AMQP           common.AMQPSettings
	ListenAddress  string
	AllowedOrigins []string

	TelegramToken       string
	TelegramBotUsername string
	TelegramPollTimeout time.Duration
	TelegramRate        int

	SMTP     channels.SMTPSettings
	CodeTTL  time.Duration
	Timeout  time.Duration
	Strict   bool
	LogLevel string
}

// loadConfig applies environment overrides to the configuration and extracts the settings.
func loadConfig(cfg *viper.Viper) *serviceConfig {
	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	return &serviceConfig{
		DatabaseURI: cfg.GetString("db.uri"),
		AMQP: common.AMQPSettings{
			URI:          cfg.GetString("amqp.uri"),
			ExchangeName: cfg.GetString("amqp.exchange.name"),
			ExchangeType: cfg.GetString("amqp.exchange.type"),
			QueueName:    cfg.GetString("amqp.queue"),
		},
		ListenAddress:  cfg.GetString("http.listen"),
		AllowedOrigins: cfg.GetStringSlice("http.allowed_origins"),

		TelegramToken:       cfg.GetString("telegram.token"),
		TelegramBotUsername: cfg.GetString("telegram.bot_username"),
		TelegramPollTimeout: cfg.GetDuration("telegram.poll_timeout"),
		TelegramRate:        cfg.GetInt("telegram.rate_per_sec"),

		SMTP: channels.SMTPSettings{
			Host:     cfg.GetString("email.smtp_host"),
			Port:     cfg.GetInt("email.smtp_port"),
			Username: cfg.GetString("email.username"),
			Password: cfg.GetString("email.password"),
			From:     cfg.GetString("email.from"),
		},
		CodeTTL:  cfg.GetDuration("email.code_ttl"),
		Timeout:  cfg.GetDuration("dispatch.channel_timeout"),
		Strict:   cfg.GetBool("templates.strict"),
		LogLevel: cfg.GetString("log.level"),
	}
}
