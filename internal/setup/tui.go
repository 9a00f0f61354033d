package setup

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/devusmanrafiq/lab-landing/config"
	"github.com/devusmanrafiq/lab-landing/internal/domain"
)

// DefaultOutput is where the wizard writes the generated configuration.
const DefaultOutput = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers holds the wizard inputs as typed by the user.
type Answers struct {
	APIURL         string
	ListenAddr     string
	StaleAfter     string
	Granularity    string
	WindowDays     string
	FeeRate        string
	PricePrecision string
	Timezone       string
	QuoteSymbol    string
	TokenSymbol    string
}

// DefaultAnswers pre-fills the form with the service defaults.
func DefaultAnswers() Answers {
	return Answers{
		ListenAddr:     config.DefaultListenAddr,
		StaleAfter:     config.DefaultStaleAfter.String(),
		Granularity:    string(domain.GranularityDay),
		WindowDays:     strconv.Itoa(config.DefaultWindowDays),
		FeeRate:        config.DefaultFeeRate.String(),
		PricePrecision: strconv.Itoa(config.DefaultPricePrecision),
		Timezone:       config.DefaultTimezone,
		QuoteSymbol:    config.DefaultQuoteSymbol,
		TokenSymbol:    config.DefaultTokenSymbol,
	}
}

// ConfigTmp converts validated answers into the YAML shape read by config.Load.
func (a Answers) ConfigTmp() (config.ConfigTmp, error) {
	stale, err := time.ParseDuration(a.StaleAfter)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "stale interval")
	}

	return config.ConfigTmp{
		PurchasesAPIURL: a.APIURL,
		ListenAddr:      a.ListenAddr,
		StaleAfter:      stale,
		Granularity:     a.Granularity,
		WindowDaysStr:   a.WindowDays,
		FeeRateStr:      a.FeeRate,
		PricePrecision:  a.PricePrecision,
		Timezone:        a.Timezone,
		QuoteSymbol:     a.QuoteSymbol,
		TokenSymbol:     a.TokenSymbol,
	}, nil
}

// WriteConfig marshals tmp to path.
func WriteConfig(path string, tmp config.ConfigTmp) error {
	data, err := yaml.Marshal(tmp)
	if err != nil {
		return errors.Wrap(err, "failed to generate yaml")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to save config file")
	}
	return nil
}

func clearScreen(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LAB DASHBOARD CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and returns the path of
// the written config file.
func RunTUI() (string, error) {
	a := DefaultAnswers()
	var confirm bool

	clearScreen("STEP 1: UPSTREAM")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Point the dashboard at the purchases API.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Purchases API URL").
				Description("Full URL returning the purchase payload").
				Value(&a.APIURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Cache lifetime").
				Description("Duration string (e.g. 1m, 5m)").
				Value(&a.StaleAfter).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return "", err
	}

	clearScreen("STEP 2: CHART")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Bucket size").
				Options(
					huh.NewOption("Daily", string(domain.GranularityDay)),
					huh.NewOption("Hourly", string(domain.GranularityHour)),
				).
				Value(&a.Granularity),
			huh.NewInput().
				Title("Window (days)").
				Value(&a.WindowDays).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Fee rate").
				Description("Fraction of volume counted as revenue (e.g. 0.05)").
				Value(&a.FeeRate).
				Validate(validateFeeRate),
			huh.NewInput().
				Title("Timezone").
				Description("IANA name used for buckets and dates (e.g. UTC)").
				Value(&a.Timezone).
				Validate(validateTimezone),
		),
	).Run()
	if err != nil {
		return "", err
	}

	clearScreen("STEP 3: DISPLAY")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Price decimals").
				Options(
					huh.NewOption("3", "3"),
					huh.NewOption("4", "4"),
					huh.NewOption("5", "5"),
					huh.NewOption("6", "6"),
				).
				Value(&a.PricePrecision),
			huh.NewInput().
				Title("Quote symbol").
				Value(&a.QuoteSymbol),
			huh.NewInput().
				Title("Token symbol").
				Value(&a.TokenSymbol),
			huh.NewInput().
				Title("Listen address").
				Value(&a.ListenAddr),
		),
	).Run()
	if err != nil {
		return "", err
	}

	clearScreen("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"API: %s\nCache: %s\nBuckets: %s over %s days\nFee rate: %s\nTimezone: %s\nListen: %s\n",
		a.APIURL, a.StaleAfter, a.Granularity, a.WindowDays, a.FeeRate, a.Timezone, a.ListenAddr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return "", err
	}
	if !confirm {
		return "", errors.New("setup cancelled by user")
	}

	tmp, err := a.ConfigTmp()
	if err != nil {
		return "", err
	}
	if err := WriteConfig(DefaultOutput, tmp); err != nil {
		return "", err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting dashboard...", DefaultOutput)))
	return DefaultOutput, nil
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL (e.g. https://api.example.com/purchases)")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a duration (e.g. 5m)")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateFeeRate(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("must be at least 0 and below 1")
	}
	return nil
}

func validateTimezone(s string) error {
	if _, err := time.LoadLocation(s); err != nil {
		return fmt.Errorf("unknown timezone")
	}
	return nil
}
