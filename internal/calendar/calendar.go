// Package calendar holds the date arithmetic used inside queries and the
// canonical date/time text forms stored by the application.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Epoch is the first year counted by ToDays.
const Epoch = 1900

const (
	// DateLayout is the canonical stored date form.
	DateLayout = "2006-01-02"
	// TimeLayout is the canonical stored time-of-day form.
	TimeLayout = "15:04"
)

// ErrMalformed is matched by every parse failure in this package.
var ErrMalformed = errors.New("malformed date or time")

var daysInMonth = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// IsLeapYear applies the Gregorian rule.
func IsLeapYear(year int) bool {
	switch {
	case year%400 == 0:
		return true
	case year%100 == 0:
		return false
	default:
		return year%4 == 0
	}
}

// DaysSince returns the number of days from January 1 of startYear to the
// YYYY-MM-DD date. DaysSince(2012, "2012-01-01") is zero.
func DaysSince(startYear int, date string) (int, error) {
	y, m, d, err := splitDate(date)
	if err != nil {
		return 0, err
	}
	days := 0
	for yr := startYear; yr < y; yr++ {
		days += yearLength(yr)
	}
	for yr := y; yr < startYear; yr++ {
		days -= yearLength(yr)
	}
	for mo := 1; mo < m; mo++ {
		days += monthLength(y, mo)
	}
	return days + d - 1, nil
}

// ToDays returns the day offset of date from 1900-01-01. Only differences
// between two offsets are meaningful.
func ToDays(date string) (int, error) {
	return DaysSince(Epoch, date)
}

func yearLength(year int) int {
	if IsLeapYear(year) {
		return 366
	}
	return 365
}

func monthLength(year, month int) int {
	if month == 2 && IsLeapYear(year) {
		return 29
	}
	return daysInMonth[month-1]
}

func splitDate(date string) (int, int, int, error) {
	parts := strings.Split(strings.TrimSpace(date), "-")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrMalformed, date)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrMalformed, date)
		}
		nums[i] = n
	}
	y, m, d := nums[0], nums[1], nums[2]
	if m < 1 || m > 12 || d < 1 || d > monthLength(y, m) {
		return 0, 0, 0, fmt.Errorf("%w: %q is out of range", ErrMalformed, date)
	}
	return y, m, d, nil
}

// CurDate returns t's date as YYYY-MM-DD.
func CurDate(t time.Time) string { return t.Format(DateLayout) }

// CurTime returns t's time of day as hh:mm.
func CurTime(t time.Time) string { return t.Format(TimeLayout) }

// FormatDate converts a date value read from a legacy store into the
// canonical YYYY-MM-DD text. A time component is discarded.
func FormatDate(v any) (string, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(DateLayout), nil
	case []byte:
		return FormatDate(string(t))
	case string:
		s := strings.TrimSpace(t)
		if i := strings.IndexAny(s, " T"); i >= 0 {
			s = s[:i]
		}
		y, m, d, err := splitDate(s)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%04d-%02d-%02d", y, m, d), nil
	case nil:
		return "", fmt.Errorf("%w: missing date", ErrMalformed)
	default:
		return "", fmt.Errorf("%w: unsupported date value %T", ErrMalformed, v)
	}
}

// FormatTime converts a time-of-day value read from a legacy store into the
// canonical hh:mm text, dropping a trailing seconds component.
func FormatTime(v any) (string, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(TimeLayout), nil
	case time.Duration:
		if t < 0 || t >= 24*time.Hour {
			return "", fmt.Errorf("%w: time of day %s out of range", ErrMalformed, t)
		}
		return fmt.Sprintf("%02d:%02d", int(t.Hours()), int(t.Minutes())%60), nil
	case []byte:
		return FormatTime(string(t))
	case string:
		return formatClock(strings.TrimSpace(t))
	case nil:
		return "", fmt.Errorf("%w: missing time", ErrMalformed)
	default:
		return "", fmt.Errorf("%w: unsupported time value %T", ErrMalformed, v)
	}
}

// formatClock accepts hh:mm and hh:mm:ss (with optional fractional seconds).
func formatClock(s string) (string, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return "", fmt.Errorf("%w: %q is not hh:mm[:ss]", ErrMalformed, s)
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return "", fmt.Errorf("%w: %q is not hh:mm[:ss]", ErrMalformed, s)
	}
	if len(parts) == 3 {
		if _, err := strconv.ParseFloat(parts[2], 64); err != nil {
			return "", fmt.Errorf("%w: %q has bad seconds", ErrMalformed, s)
		}
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}
