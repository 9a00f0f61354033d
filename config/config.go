package config

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/devusmanrafiq/lab-landing/internal/domain"
	"github.com/devusmanrafiq/lab-landing/pkg/indicators"
)

const (
	EnvPurchasesAPIURL = "PURCHASES_API_URL"
	EnvDashboardAddr   = "DASHBOARD_ADDR"

	DefaultListenAddr     = ":8000"
	DefaultStaleAfter     = 5 * time.Minute
	DefaultFetchAttempts  = 3
	DefaultRetryDelay     = time.Second
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultWindowDays     = 30
	DefaultPricePrecision = 3
	DefaultTrendPeriod    = 7
	DefaultQuoteSymbol    = "BNB"
	DefaultTokenSymbol    = "LAB"
	DefaultTimezone       = "UTC"
	DefaultCertCacheDir   = "cert-cache"
)

var (
	DefaultFeeRate     = decimal.RequireFromString("0.05")
	DefaultTotalSupply = decimal.NewFromInt(1_000_000_000)
)

// Config is the validated service configuration.
type Config struct {
	PurchasesAPIURL string
	ListenAddr      string
	TLSDomains      []string
	CertCacheDir    string

	StaleAfter    time.Duration
	FetchAttempts int
	RetryDelay    time.Duration
	HTTPTimeout   time.Duration

	WindowDays     int
	Granularity    domain.Granularity
	FeeRate        decimal.Decimal
	PricePrecision int32
	TrendPeriod    int
	TrendMethod    indicators.Method
	Location       *time.Location

	QuoteSymbol string
	TokenSymbol string
	TotalSupply decimal.Decimal

	// RunSetup asks the caller to start the interactive wizard instead of the service.
	RunSetup bool
}

// ConfigTmp mirrors the YAML file. Numbers that need exact decimals are strings.
type ConfigTmp struct {
	PurchasesAPIURL string        `yaml:"purchases_api_url"`
	ListenAddr      string        `yaml:"listen_addr,omitempty"`
	TLSDomains      []string      `yaml:"tls_domains,omitempty"`
	CertCacheDir    string        `yaml:"cert_cache_dir,omitempty"`
	StaleAfter      time.Duration `yaml:"stale_after,omitempty"`
	FetchAttempts   int           `yaml:"fetch_attempts,omitempty"`
	RetryDelay      time.Duration `yaml:"retry_delay,omitempty"`
	HTTPTimeout     time.Duration `yaml:"http_timeout,omitempty"`
	WindowDaysStr   string        `yaml:"window_days,omitempty"`
	Granularity     string        `yaml:"granularity,omitempty"`
	FeeRateStr      string        `yaml:"fee_rate,omitempty"`
	PricePrecision  string        `yaml:"price_precision,omitempty"`
	TrendPeriodStr  string        `yaml:"trend_period,omitempty"`
	TrendMethod     string        `yaml:"trend_method,omitempty"`
	Timezone        string        `yaml:"timezone,omitempty"`
	QuoteSymbol     string        `yaml:"quote_symbol,omitempty"`
	TokenSymbol     string        `yaml:"token_symbol,omitempty"`
	TotalSupplyStr  string        `yaml:"total_supply,omitempty"`
}

// Get loads the configuration from the process arguments and environment.
func Get() (Config, error) {
	return Load(os.Args[1:])
}

// Load parses args, reads the YAML file when --config is given, loads the .env
// file and applies environment overrides.
func Load(args []string) (Config, error) {
	flags := flag.NewFlagSet("lab-landing", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to yaml config")
	envFile := flags.String("env-file", ".env", "dotenv file with environment overrides")
	setup := flags.Bool("setup", false, "run the interactive configuration wizard")

	var tmp ConfigTmp
	flags.StringVar(&tmp.PurchasesAPIURL, "api-url", "", "purchases API endpoint")
	flags.StringVar(&tmp.ListenAddr, "addr", "", "listen address, example: :8000")
	domains := flags.String("tls-domains", "", "comma separated domains for automatic TLS")
	flags.DurationVar(&tmp.StaleAfter, "stale-after", 0, "how long a fetched payload is served from cache")
	flags.StringVar(&tmp.WindowDaysStr, "window-days", "", "chart window in days")
	flags.StringVar(&tmp.Granularity, "granularity", "", "chart bucket size: day or hour")
	flags.StringVar(&tmp.FeeRateStr, "fee-rate", "", "revenue fee rate, example: 0.05")
	flags.StringVar(&tmp.Timezone, "timezone", "", "IANA timezone used for bucketing and dates")
	flags.StringVar(&tmp.TrendMethod, "trend-method", "", "volume trend line: sma or ema")

	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	if err := loadEnvFile(*envFile); err != nil {
		return Config{}, err
	}

	if *configPath != "" {
		fileTmp, err := readYaml(*configPath)
		if err != nil {
			return Config{}, err
		}
		tmp = mergeFlags(fileTmp, tmp)
	}
	if *domains != "" {
		tmp.TLSDomains = splitList(*domains)
	}

	applyEnv(&tmp)

	cfg, err := tmp.parse()
	if err != nil {
		return Config{}, err
	}
	cfg.RunSetup = *setup

	if cfg.RunSetup {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "load env file %s", path)
	}
	return nil
}

func readYaml(path string) (ConfigTmp, error) {
	var tmp ConfigTmp

	f, err := os.ReadFile(path)
	if err != nil {
		return tmp, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return tmp, errors.Wrap(err, "parse yaml config")
	}

	return tmp, nil
}

// mergeFlags lets explicitly set flags win over the file.
func mergeFlags(file, flags ConfigTmp) ConfigTmp {
	pick := func(flagVal, fileVal string) string {
		if flagVal != "" {
			return flagVal
		}
		return fileVal
	}

	file.PurchasesAPIURL = pick(flags.PurchasesAPIURL, file.PurchasesAPIURL)
	file.ListenAddr = pick(flags.ListenAddr, file.ListenAddr)
	file.WindowDaysStr = pick(flags.WindowDaysStr, file.WindowDaysStr)
	file.Granularity = pick(flags.Granularity, file.Granularity)
	file.FeeRateStr = pick(flags.FeeRateStr, file.FeeRateStr)
	file.Timezone = pick(flags.Timezone, file.Timezone)
	file.TrendMethod = pick(flags.TrendMethod, file.TrendMethod)
	if flags.StaleAfter != 0 {
		file.StaleAfter = flags.StaleAfter
	}

	return file
}

func applyEnv(tmp *ConfigTmp) {
	if v := strings.TrimSpace(os.Getenv(EnvPurchasesAPIURL)); v != "" {
		tmp.PurchasesAPIURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDashboardAddr)); v != "" {
		tmp.ListenAddr = v
	}
}

func (c ConfigTmp) parse() (Config, error) {
	cfg := Config{
		PurchasesAPIURL: strings.TrimSpace(c.PurchasesAPIURL),
		ListenAddr:      orDefault(c.ListenAddr, DefaultListenAddr),
		TLSDomains:      c.TLSDomains,
		CertCacheDir:    orDefault(c.CertCacheDir, DefaultCertCacheDir),
		StaleAfter:      durationOrDefault(c.StaleAfter, DefaultStaleAfter),
		FetchAttempts:   c.FetchAttempts,
		RetryDelay:      durationOrDefault(c.RetryDelay, DefaultRetryDelay),
		HTTPTimeout:     durationOrDefault(c.HTTPTimeout, DefaultHTTPTimeout),
		QuoteSymbol:     orDefault(c.QuoteSymbol, DefaultQuoteSymbol),
		TokenSymbol:     orDefault(c.TokenSymbol, DefaultTokenSymbol),
	}
	if cfg.FetchAttempts == 0 {
		cfg.FetchAttempts = DefaultFetchAttempts
	}

	var err error
	if cfg.WindowDays, err = intOrDefault(c.WindowDaysStr, DefaultWindowDays, "window_days"); err != nil {
		return Config{}, err
	}
	if cfg.TrendPeriod, err = intOrDefault(c.TrendPeriodStr, DefaultTrendPeriod, "trend_period"); err != nil {
		return Config{}, err
	}
	precision, err := intOrDefault(c.PricePrecision, DefaultPricePrecision, "price_precision")
	if err != nil {
		return Config{}, err
	}
	cfg.PricePrecision = int32(precision)

	cfg.Granularity = domain.GranularityDay
	if c.Granularity != "" {
		if cfg.Granularity, err = domain.ParseGranularity(c.Granularity); err != nil {
			return Config{}, fmt.Errorf("incorrect 'granularity' param in config: %w", err)
		}
	}

	if cfg.TrendMethod, err = indicators.ParseMethod(c.TrendMethod); err != nil {
		return Config{}, fmt.Errorf("incorrect 'trend_method' param in config: %w", err)
	}

	if cfg.FeeRate, err = decimalOrDefault(c.FeeRateStr, DefaultFeeRate, "fee_rate"); err != nil {
		return Config{}, err
	}
	if cfg.TotalSupply, err = decimalOrDefault(c.TotalSupplyStr, DefaultTotalSupply, "total_supply"); err != nil {
		return Config{}, err
	}

	if cfg.Location, err = time.LoadLocation(orDefault(c.Timezone, DefaultTimezone)); err != nil {
		return Config{}, fmt.Errorf("incorrect 'timezone' param in config: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.PurchasesAPIURL == "":
		return fmt.Errorf("purchases API URL is required (--api-url, purchases_api_url or %s)", EnvPurchasesAPIURL)
	case c.WindowDays <= 0:
		return fmt.Errorf("window_days must be positive, got %d", c.WindowDays)
	case c.FetchAttempts < 1:
		return fmt.Errorf("fetch_attempts must be at least 1, got %d", c.FetchAttempts)
	case c.FeeRate.IsNegative() || c.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return fmt.Errorf("fee_rate must be in [0, 1), got %s", c.FeeRate)
	case c.PricePrecision < 3 || c.PricePrecision > 6:
		return fmt.Errorf("price_precision must be between 3 and 6, got %d", c.PricePrecision)
	case c.TrendPeriod < 0:
		return fmt.Errorf("trend_period must not be negative, got %d", c.TrendPeriod)
	case c.TotalSupply.IsNegative():
		return fmt.Errorf("total_supply must not be negative, got %s", c.TotalSupply)
	}
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func durationOrDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func intOrDefault(v string, def int, name string) (int, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("incorrect '%s' param in config (must be an integer), error: %w", name, err)
	}
	return n, nil
}

func decimalOrDefault(v string, def decimal.Decimal, name string) (decimal.Decimal, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("incorrect '%s' param in config (must be a decimal), error: %w", name, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
