package config_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/projectloop/mailgrouper/pkg/cli/config"
	appconfig "github.com/projectloop/mailgrouper/pkg/config"
)

func TestServerApplyOverrides(t *testing.T) {
	t.Run("leaves env-sourced values alone when flags are unset", func(t *testing.T) {
		cfg := &appconfig.Config{HTTPAddr: ":8080", LogLevel: "info"}
		s := &config.Server{}
		s.ApplyOverrides(cfg)
		gt.Value(t, cfg.HTTPAddr).Equal(":8080")
		gt.Value(t, cfg.LogLevel).Equal("info")
	})

	t.Run("overrides only the flags that were set", func(t *testing.T) {
		cfg := &appconfig.Config{HTTPAddr: ":8080", LogLevel: "info"}
		s := &config.Server{HTTPAddr: ":9090"}
		s.ApplyOverrides(cfg)
		gt.Value(t, cfg.HTTPAddr).Equal(":9090")
		gt.Value(t, cfg.LogLevel).Equal("info")
	})

	t.Run("maps WebhookSecret onto WebhookSharedSecret", func(t *testing.T) {
		cfg := &appconfig.Config{}
		s := &config.Server{WebhookSecret: "shh"}
		s.ApplyOverrides(cfg)
		gt.Value(t, cfg.WebhookSharedSecret).Equal("shh")
	})

	t.Run("overrides AttachmentBucket", func(t *testing.T) {
		cfg := &appconfig.Config{}
		s := &config.Server{AttachmentBucket: "attachments-bucket"}
		s.ApplyOverrides(cfg)
		gt.Value(t, cfg.AttachmentBucket).Equal("attachments-bucket")
	})

	t.Run("returns every declared flag", func(t *testing.T) {
		s := &config.Server{}
		gt.Value(t, len(s.Flags())).Equal(21)
	})
}
