package canvas

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDatePattern    = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	legacyDatePattern = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)
)

// FormatDate renders t's local calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// NormalizeDate accepts YYYY-MM-DD or DD/MM/YYYY and returns the ISO form.
// It reports false for blank input, other layouts, and impossible calendar
// dates such as 31/02/2026.
func NormalizeDate(value string) (string, bool) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return "", false
	}

	if match := isoDatePattern.FindStringSubmatch(raw); match != nil {
		return buildDate(match[1], match[2], match[3])
	}
	if match := legacyDatePattern.FindStringSubmatch(raw); match != nil {
		return buildDate(match[3], match[2], match[1])
	}
	return "", false
}

// IsISODate reports whether value is a real calendar date in YYYY-MM-DD form.
func IsISODate(value string) bool {
	match := isoDatePattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return false
	}
	_, ok := buildDate(match[1], match[2], match[3])
	return ok
}

func buildDate(yearRaw, monthRaw, dayRaw string) (string, bool) {
	year, _ := strconv.Atoi(yearRaw)
	month, _ := strconv.Atoi(monthRaw)
	day, _ := strconv.Atoi(dayRaw)
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}

	candidate := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	if candidate.Year() != year || int(candidate.Month()) != month || candidate.Day() != day {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}
