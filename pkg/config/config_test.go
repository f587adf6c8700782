package config_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/projectloop/mailgrouper/pkg/config"
)

func defaultConfig() config.Config {
	return config.Config{
		ConfidenceAuto:   0.80,
		ConfidenceReview: 0.60,
		ConfidenceNew:    0.40,
		PollInterval:     "normal",
		AITimeoutMS:      30000,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	gt.NoError(t, defaultConfig().Validate()).Required()
}

func TestValidateRejectsUnorderedConfidenceThresholds(t *testing.T) {
	cfg := defaultConfig()
	cfg.ConfidenceReview = 0.85
	gt.Error(t, cfg.Validate())
}

func TestValidateRejectsBadCredentialsKeyLength(t *testing.T) {
	cfg := defaultConfig()
	cfg.CredentialsKey = "too-short"
	gt.Error(t, cfg.Validate())
}

func TestValidateAcceptsThirtyTwoByteCredentialsKey(t *testing.T) {
	cfg := defaultConfig()
	cfg.CredentialsKey = "01234567890123456789012345678901"
	gt.NoError(t, cfg.Validate()).Required()
}

func TestValidateRejectsUnknownPollInterval(t *testing.T) {
	cfg := defaultConfig()
	cfg.PollInterval = "turbo"
	gt.Error(t, cfg.Validate())
}

func TestAITimeoutConvertsMillisecondsToDuration(t *testing.T) {
	cfg := defaultConfig()
	cfg.AITimeoutMS = 2500
	gt.Value(t, cfg.AITimeout().Milliseconds()).Equal(int64(2500))
}

func TestSecureBoxRejectsWrongKeyLength(t *testing.T) {
	cfg := defaultConfig()
	cfg.CredentialsKey = "short"
	_, err := cfg.SecureBox()
	gt.Error(t, err)
}
