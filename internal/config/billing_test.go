package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBillingConfigDefaults(t *testing.T) {
	cfg, err := LoadBillingConfig(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "GBP", cfg.Currency)
	assert.Equal(t, 30, cfg.Invoice.DueDays)
	assert.True(t, cfg.TaxRate().Equal(decimal.RequireFromString("0.2")))
	assert.True(t, cfg.InstanceHourlyRate("t2.micro").Equal(decimal.RequireFromString("0.0116")))
	assert.True(t, cfg.InstanceHourlyRate("x9.huge").Equal(decimal.RequireFromString("0.05")))
	assert.True(t, cfg.TransferGBRate().Equal(decimal.RequireFromString("0.09")))
}

func TestLoadBillingConfigOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "billing.yml")
	content := `billing:
  currency: USD
  tax:
    label: Sales tax
    rate: 0.075
  invoice:
    dueDays: 14
  rates:
    instances:
      - type: t2.micro
        hourlyRate: 0.02
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadBillingConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, "Sales tax", cfg.Tax.Label)
	assert.Equal(t, 14, cfg.Invoice.DueDays)
	assert.True(t, cfg.TaxRate().Equal(decimal.RequireFromString("0.075")))
	assert.True(t, cfg.InstanceHourlyRate("T2.MICRO").Equal(decimal.RequireFromString("0.02")))
	// Untouched sections keep their defaults.
	assert.Equal(t, "Zeltra Connect", cfg.Issuer.Name)
	assert.Equal(t, "ZC-{YYYY}{MM}-{SEQ}", cfg.Invoice.NumberTemplate)
}

func TestValidateBillingConfig(t *testing.T) {
	cfg := DefaultBillingConfig()
	cfg.Tax.Rate = "abc"
	assert.Error(t, validateBillingConfig(cfg))

	cfg = DefaultBillingConfig()
	cfg.Rates.TransferGB = "-1"
	assert.Error(t, validateBillingConfig(cfg))

	cfg = DefaultBillingConfig()
	cfg.Invoice.DueDays = 0
	assert.Error(t, validateBillingConfig(cfg))

	assert.NoError(t, validateBillingConfig(DefaultBillingConfig()))
}

func TestNumberTemplateNeedsSequence(t *testing.T) {
	v := viper.New()
	v.Set("billing.invoice.numberTemplate", "ZC-{YYYY}{MM}")
	_, err := LoadBillingConfig(v)
	assert.ErrorContains(t, err, "{SEQ}")

	for _, tpl := range []string{"ZC-{YYYY}{MM}-{SEQ}", "INV-{SEQ6}"} {
		v = viper.New()
		v.Set("billing.invoice.numberTemplate", tpl)
		cfg, err := LoadBillingConfig(v)
		require.NoError(t, err, tpl)
		assert.Equal(t, tpl, cfg.Invoice.NumberTemplate)
	}
}

func TestStorageRateIsPerHour(t *testing.T) {
	cfg := DefaultBillingConfig()

	got := cfg.StorageGBHourRate().Mul(decimal.NewFromInt(24)).Round(6)
	assert.True(t, got.Equal(decimal.RequireFromString("0.023")), got.String())
}

func TestStaticHolder(t *testing.T) {
	cfg := DefaultBillingConfig()
	cfg.Currency = "EUR"

	holder := NewStaticBillingConfigHolder(cfg)
	assert.Equal(t, "EUR", holder.Get().Currency)
}
