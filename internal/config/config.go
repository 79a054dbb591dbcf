package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	JWT         JWTConfig         `yaml:"jwt"`
	Log         LogConfig         `yaml:"log"`
	Fund        FundConfig        `yaml:"fund"`
	Refund      RefundConfig      `yaml:"refund"`
	Approval    ApprovalConfig    `yaml:"approval"`
	Negotiation NegotiationConfig `yaml:"negotiation"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// SMTPConfig contains email service settings
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	// FinanceAlertEmail receives fund shortfall and chain integrity alerts.
	FinanceAlertEmail string `yaml:"finance_alert_email"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// FundConfig contains insurance fund settings
type FundConfig struct {
	// ContributionRate is the fraction of an order's total contributed to
	// the fund at payment time (default 0.025).
	ContributionRate float64 `yaml:"contribution_rate"`
	// MinimumBalance triggers a low-balance alert when the fund drops
	// below it.
	MinimumBalance float64 `yaml:"minimum_balance"`
	// AppendRetries bounds the optimistic retry loop on ledger appends.
	AppendRetries int `yaml:"append_retries"`
}

// RefundConfig contains settlement policy settings
type RefundConfig struct {
	// PartialRefundPercent maps the policy-table refund reasons
	// (timeline_delay, production_error, shipping_damage) to the
	// percentage of the paid amount refunded.
	PartialRefundPercent map[string]float64 `yaml:"partial_refund_percent"`
	// Risk classification thresholds on companyLoss / orderTotal.
	RiskLowMax    float64 `yaml:"risk_low_max"`
	RiskMediumMax float64 `yaml:"risk_medium_max"`
}

// ApprovalConfig contains the business-rule thresholds that decide which
// approval levels a refund request must pass.
type ApprovalConfig struct {
	ManagerLossThreshold            float64 `yaml:"manager_loss_threshold"`
	ManagerAmountThreshold          float64 `yaml:"manager_amount_threshold"`
	QualityPctThreshold             int32   `yaml:"quality_pct_threshold"`
	ExecutiveAmountThreshold        float64 `yaml:"executive_amount_threshold"`
	CriticalLossThreshold           float64 `yaml:"critical_loss_threshold"`
	VendorFailureExecutiveThreshold float64 `yaml:"vendor_failure_executive_threshold"`
}

// NegotiationConfig contains vendor negotiation settings
type NegotiationConfig struct {
	// DefaultExpiryDays is used when a negotiation is created without an
	// explicit deadline.
	DefaultExpiryDays int `yaml:"default_expiry_days"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ExpireNegotiations string `yaml:"expire_negotiations"`
	VerifyLedgerChains string `yaml:"verify_ledger_chains"`
	CheckFundBalances  string `yaml:"check_fund_balances"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// SMTP
	if val := os.Getenv("SMTP_HOST"); val != "" {
		c.SMTP.Host = val
	}
	if val := os.Getenv("SMTP_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.SMTP.Port)
	}
	if val := os.Getenv("SMTP_USER"); val != "" {
		c.SMTP.User = val
	}
	if val := os.Getenv("SMTP_PASSWORD"); val != "" {
		c.SMTP.Password = val
	}
	if val := os.Getenv("SMTP_FROM"); val != "" {
		c.SMTP.From = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Database validation
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	// SMTP validation
	if c.SMTP.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("invalid SMTP port: %d", c.SMTP.Port)
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry <= 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	// Fund defaults
	if c.Fund.ContributionRate <= 0 {
		c.Fund.ContributionRate = 0.025
	}
	if c.Fund.ContributionRate >= 1 {
		return fmt.Errorf("fund contribution rate must be a fraction below 1, got %v", c.Fund.ContributionRate)
	}
	if c.Fund.AppendRetries <= 0 {
		c.Fund.AppendRetries = 3
	}

	// Refund policy defaults
	if c.Refund.PartialRefundPercent == nil {
		c.Refund.PartialRefundPercent = map[string]float64{}
	}
	if _, ok := c.Refund.PartialRefundPercent["timeline_delay"]; !ok {
		c.Refund.PartialRefundPercent["timeline_delay"] = 25
	}
	if _, ok := c.Refund.PartialRefundPercent["production_error"]; !ok {
		c.Refund.PartialRefundPercent["production_error"] = 100
	}
	if _, ok := c.Refund.PartialRefundPercent["shipping_damage"]; !ok {
		c.Refund.PartialRefundPercent["shipping_damage"] = 100
	}
	for reason, pct := range c.Refund.PartialRefundPercent {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("partial refund percent for %s must be between 0 and 100, got %v", reason, pct)
		}
	}
	if c.Refund.RiskLowMax <= 0 {
		c.Refund.RiskLowMax = 0.10
	}
	if c.Refund.RiskMediumMax <= 0 {
		c.Refund.RiskMediumMax = 0.25
	}
	if c.Refund.RiskMediumMax <= c.Refund.RiskLowMax {
		return fmt.Errorf("risk_medium_max (%v) must exceed risk_low_max (%v)", c.Refund.RiskMediumMax, c.Refund.RiskLowMax)
	}

	// Approval rule defaults (amounts in the tenant currency)
	if c.Approval.ManagerLossThreshold <= 0 {
		c.Approval.ManagerLossThreshold = 1000000
	}
	if c.Approval.ManagerAmountThreshold <= 0 {
		c.Approval.ManagerAmountThreshold = 3000000
	}
	if c.Approval.QualityPctThreshold <= 0 {
		c.Approval.QualityPctThreshold = 80
	}
	if c.Approval.ExecutiveAmountThreshold <= 0 {
		c.Approval.ExecutiveAmountThreshold = 5000000
	}
	if c.Approval.CriticalLossThreshold <= 0 {
		c.Approval.CriticalLossThreshold = 2000000
	}
	if c.Approval.VendorFailureExecutiveThreshold <= 0 {
		c.Approval.VendorFailureExecutiveThreshold = 10000000
	}

	// Negotiation defaults
	if c.Negotiation.DefaultExpiryDays <= 0 {
		c.Negotiation.DefaultExpiryDays = 7
	}

	// Scheduler defaults
	if c.Scheduler.ExpireNegotiations == "" {
		c.Scheduler.ExpireNegotiations = "0 */15 * * * *" // every 15 minutes
	}
	if c.Scheduler.VerifyLedgerChains == "" {
		c.Scheduler.VerifyLedgerChains = "0 0 2 * * *" // 2 AM UTC
	}
	if c.Scheduler.CheckFundBalances == "" {
		c.Scheduler.CheckFundBalances = "0 0 6 * * *" // 6 AM UTC
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
