package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig holds the commercial settings used by aggregation and invoicing.
// Monetary values are kept as strings so YAML floats never pass through float64 math.
type BillingConfig struct {
	Currency string        `mapstructure:"currency"`
	Issuer   IssuerConfig  `mapstructure:"issuer"`
	Tax      TaxConfig     `mapstructure:"tax"`
	Invoice  InvoiceConfig `mapstructure:"invoice"`
	Budget   BudgetConfig  `mapstructure:"budget"`
	Rates    RateConfig    `mapstructure:"rates"`
}

type IssuerConfig struct {
	Name      string   `mapstructure:"name"`
	Tagline   string   `mapstructure:"tagline"`
	Address   []string `mapstructure:"address"`
	VATNumber string   `mapstructure:"vatNumber"`
	Email     string   `mapstructure:"email"`
	Phone     string   `mapstructure:"phone"`
}

type TaxConfig struct {
	Label string `mapstructure:"label"`
	Rate  string `mapstructure:"rate"`
}

type InvoiceConfig struct {
	DueDays        int    `mapstructure:"dueDays"`
	NumberTemplate string `mapstructure:"numberTemplate"`
	PaymentTerms   string `mapstructure:"paymentTerms"`
}

type BudgetConfig struct {
	MonthlyLimit string `mapstructure:"monthlyLimit"`
	WarningRatio string `mapstructure:"warningRatio"`
}

type InstanceRate struct {
	Type       string `mapstructure:"type"`
	HourlyRate string `mapstructure:"hourlyRate"`
}

type RateConfig struct {
	Instances       []InstanceRate `mapstructure:"instances"`
	DefaultInstance string         `mapstructure:"defaultInstance"`
	StorageGBDay    string         `mapstructure:"storageGbDay"`
	TransferGB      string         `mapstructure:"transferGb"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Currency: "GBP",
		Issuer: IssuerConfig{
			Name:      "Zeltra Connect",
			Tagline:   "Cloud Services Provider",
			Address:   []string{"123 Cloud Street", "London, UK"},
			VATNumber: "GB123456789",
			Email:     "support@zeltraconnect.com",
			Phone:     "+44 20 1234 5678",
		},
		Tax: TaxConfig{Label: "VAT", Rate: "0.20"},
		Invoice: InvoiceConfig{
			DueDays:        30,
			NumberTemplate: "ZC-{YYYY}{MM}-{SEQ}",
			PaymentTerms:   "Payment is due within 30 days of invoice date.",
		},
		Budget: BudgetConfig{MonthlyLimit: "300.00", WarningRatio: "0.80"},
		Rates: RateConfig{
			Instances: []InstanceRate{
				{Type: "t2.micro", HourlyRate: "0.0116"},
				{Type: "t2.small", HourlyRate: "0.023"},
				{Type: "t2.medium", HourlyRate: "0.0464"},
				{Type: "t3.micro", HourlyRate: "0.0104"},
				{Type: "t3.small", HourlyRate: "0.0208"},
				{Type: "t3.medium", HourlyRate: "0.0416"},
				{Type: "m5.large", HourlyRate: "0.096"},
				{Type: "m5.xlarge", HourlyRate: "0.192"},
			},
			DefaultInstance: "0.05",
			StorageGBDay:    "0.023",
			TransferGB:      "0.09",
		},
	}
}

// TaxRate returns the configured tax rate as a fraction.
func (c BillingConfig) TaxRate() decimal.Decimal { return mustDecimal(c.Tax.Rate) }

// MonthlyBudget returns the configured monthly spend limit.
func (c BillingConfig) MonthlyBudget() decimal.Decimal { return mustDecimal(c.Budget.MonthlyLimit) }

// BudgetWarningRatio returns the share of the budget that raises a warning.
func (c BillingConfig) BudgetWarningRatio() decimal.Decimal {
	return mustDecimal(c.Budget.WarningRatio)
}

// InstanceHourlyRate returns the hourly price of instanceType, or the default rate.
func (c BillingConfig) InstanceHourlyRate(instanceType string) decimal.Decimal {
	instanceType = strings.TrimSpace(instanceType)
	for _, rate := range c.Rates.Instances {
		if strings.EqualFold(rate.Type, instanceType) {
			return mustDecimal(rate.HourlyRate)
		}
	}
	return mustDecimal(c.Rates.DefaultInstance)
}

// StorageGBHourRate converts the per GB-day storage price to GB-hours.
func (c BillingConfig) StorageGBHourRate() decimal.Decimal {
	return mustDecimal(c.Rates.StorageGBDay).Div(decimal.NewFromInt(24))
}

// TransferGBRate returns the per GB data transfer price.
func (c BillingConfig) TransferGBRate() decimal.Decimal { return mustDecimal(c.Rates.TransferGB) }

func mustDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Invoice numbers are only unique through the sequence token.
var seqTokenRe = regexp.MustCompile(`\{SEQ\d*\}`)

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder wraps a fixed config, mostly for tests and tools.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/zeltra")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ZELTRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := LoadBillingConfig(v)
	if err != nil {
		return nil, err
	}
	holder := NewStaticBillingConfigHolder(cfg)
	if !fileFound {
		log.Info("billing config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := LoadBillingConfig(v)
		if err != nil {
			log.Warn("billing config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// LoadBillingConfig decodes the "billing" key of v on top of the defaults and validates it.
func LoadBillingConfig(v *viper.Viper) (BillingConfig, error) {
	cfg := DefaultBillingConfig()
	if v != nil && v.IsSet("billing") {
		if err := v.UnmarshalKey("billing", &cfg); err != nil {
			return BillingConfig{}, err
		}
	}
	if err := validateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("billing.currency cannot be empty")
	}
	if strings.TrimSpace(cfg.Issuer.Name) == "" {
		return errors.New("billing.issuer.name cannot be empty")
	}
	if cfg.Invoice.DueDays <= 0 {
		return errors.New("billing.invoice.dueDays must be positive")
	}
	if strings.TrimSpace(cfg.Invoice.NumberTemplate) == "" {
		return errors.New("billing.invoice.numberTemplate cannot be empty")
	}
	if !seqTokenRe.MatchString(cfg.Invoice.NumberTemplate) {
		return errors.New("billing.invoice.numberTemplate must contain {SEQ} or {SEQn}")
	}

	amounts := map[string]string{
		"billing.tax.rate":              cfg.Tax.Rate,
		"billing.budget.monthlyLimit":   cfg.Budget.MonthlyLimit,
		"billing.budget.warningRatio":   cfg.Budget.WarningRatio,
		"billing.rates.defaultInstance": cfg.Rates.DefaultInstance,
		"billing.rates.storageGbDay":    cfg.Rates.StorageGBDay,
		"billing.rates.transferGb":      cfg.Rates.TransferGB,
	}
	for _, rate := range cfg.Rates.Instances {
		amounts["billing.rates.instances."+rate.Type] = rate.HourlyRate
	}
	for key, raw := range amounts {
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s: invalid decimal %q", key, raw)
		}
		if d.IsNegative() {
			return fmt.Errorf("%s cannot be negative", key)
		}
	}
	if cfg.TaxRate().GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("billing.tax.rate must be a fraction")
	}
	return nil
}
