package sqlite

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"gnutrition/internal/calendar"

	lru "github.com/hashicorp/golang-lru/v2"
	msqlite "modernc.org/sqlite"
)

var (
	registerOnce sync.Once
	registerErr  error
	patterns     *lru.Cache[string, *regexp.Regexp]
)

// registerFunctions makes REGEXP and TO_DAYS callable from SQL on every
// connection the driver opens. Registration is process-wide and happens once.
func registerFunctions() error {
	registerOnce.Do(func() {
		cache, err := lru.New[string, *regexp.Regexp](256)
		if err != nil {
			registerErr = err
			return
		}
		patterns = cache
		registerErr = errors.Join(
			msqlite.RegisterDeterministicScalarFunction("regexp", 2, regexpFunc),
			msqlite.RegisterDeterministicScalarFunction("to_days", 1, toDaysFunc),
		)
	})
	return registerErr
}

// regexpFunc backs `text REGEXP pattern`, which SQLite calls as
// regexp(pattern, text).
func regexpFunc(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if args[0] == nil || args[1] == nil {
		return nil, nil
	}
	re, err := compilePattern(textArg(args[0]))
	if err != nil {
		return nil, err
	}
	if re.MatchString(textArg(args[1])) {
		return int64(1), nil
	}
	return int64(0), nil
}

// toDaysFunc backs TO_DAYS(date): days elapsed since 1900-01-01.
func toDaysFunc(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if args[0] == nil {
		return nil, nil
	}
	days, err := calendar.ToDays(textArg(args[0]))
	if err != nil {
		return nil, err
	}
	return int64(days), nil
}

// Match reports whether pattern matches anywhere in text, with the same
// semantics as the SQL REGEXP operator.
func Match(pattern, text string) (bool, error) {
	if err := registerFunctions(); err != nil {
		return false, err
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regexp %q: %w", pattern, err)
	}
	patterns.Add(pattern, re)
	return re, nil
}

func textArg(v driver.Value) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
