package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.NotNil(t, cfg)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 2*time.Second, cfg.Bulk.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.Bulk.MaxWait)
	assert.Equal(t, NotifierHTTP, cfg.Notifier.Driver)
	assert.Equal(t, 3, cfg.Sheet.WriteRetries)
	assert.Equal(t, "publish-approvals", cfg.Rules.RulesSection)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Redis.Enabled)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("BULK_POLL_INTERVAL", "250ms")
	v.Set("BULK_MAX_WAIT", "not-a-duration")
	v.Set("ADMIN_PUBLISH_BASE_URL", "https://admin.example.com/")
	v.Set("ALLOWED_ORIGINS", " https://a.example.com , ,https://b.example.com")
	v.Set("NOTIFIER_DRIVER", "SMTP")

	cfg := fromViper(v)
	assert.Equal(t, 250*time.Millisecond, cfg.Bulk.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.Bulk.MaxWait)
	assert.Equal(t, "https://admin.example.com", cfg.AdminAPI.PublishBaseURL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, NotifierSMTP, cfg.Notifier.Driver)
}
