package main

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readDefaults(t *testing.T) *viper.Viper {
	cfg := viper.New()
	cfg.SetConfigType("yaml")
	require.NoError(t, cfg.ReadConfig(strings.NewReader(defaultConfig)))
	return cfg
}

func TestLoadConfigDefaults(t *testing.T) {
	config := loadConfig(readDefaults(t))

	assert.Equal(t, "helpdesk_notifier", config.AMQP.QueueName)
	assert.Equal(t, "topic", config.AMQP.ExchangeType)
	assert.Equal(t, ":8080", config.ListenAddress)
	assert.Equal(t, []string{"*"}, config.AllowedOrigins)
	assert.Equal(t, 10*time.Second, config.TelegramPollTimeout)
	assert.Equal(t, 25, config.TelegramRate)
	assert.Equal(t, 587, config.SMTP.Port)
	assert.Equal(t, time.Duration(0), config.CodeTTL)
	assert.Equal(t, 15*time.Second, config.Timeout)
	assert.False(t, config.Strict)
	assert.Equal(t, "info", config.LogLevel)
	assert.Empty(t, config.TelegramToken)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("HELPDESK_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("HELPDESK_EMAIL_PASSWORD", "hunter2")
	t.Setenv("HELPDESK_EMAIL_CODE_TTL", "15m")

	config := loadConfig(readDefaults(t))

	assert.Equal(t, "123:abc", config.TelegramToken)
	assert.Equal(t, "hunter2", config.SMTP.Password)
	assert.Equal(t, 15*time.Minute, config.CodeTTL)
}
