// Package cli provides the command-line interface for the backtesting engine.
package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatRatio formats a dimensionless ratio such as Sharpe or profit factor.
func FormatRatio(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

// FormatMoney formats a dollar amount.
func FormatMoney(amount decimal.Decimal) string {
	return utils.FormatUSD(amount)
}

// FormatDate formats a date in US/Eastern.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(utils.EasternLocation).Format("2006-01-02")
}

// FormatDateTime formats a datetime in US/Eastern.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(utils.EasternLocation).Format("2006-01-02 15:04")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
