// Package delay parses and converts the delay strings used by card schedules.
//
// A delay is either an absolute duration such as "15m" or "3d", or a
// coefficient such as "x2.5" that multiplies the card's current delay.
package delay

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidDelayFormat is returned for strings matching neither form.
var ErrInvalidDelayFormat = errors.New("delay: invalid delay format")

const (
	Second = int64(1000)
	Minute = 60 * Second
	Hour   = 60 * Minute
	Day    = 24 * Hour
	Month  = 30 * Day
)

// MaxMillis is the largest span FromMillis and Resolve produce: the longest
// whole number of months that fits in an int64.
const MaxMillis = math.MaxInt64 / Month * Month

// MaxDelayLimit bounds the delay cap a scheduler may be configured with, so
// that now plus any schedule stays well inside time.Time's range.
const MaxDelayLimit = 1200 * Month

var (
	durationPattern    = regexp.MustCompile(`^(\d+)([smhdM])$`)
	coefficientPattern = regexp.MustCompile(`^x(\d+(\.\d+)?)$`)
)

// units in descending order of size.
var units = []struct {
	suffix byte
	millis int64
}{
	{'M', Month},
	{'d', Day},
	{'h', Hour},
	{'m', Minute},
	{'s', Second},
}

func unitMillis(suffix byte) int64 {
	for _, u := range units {
		if u.suffix == suffix {
			return u.millis
		}
	}
	return 0
}

// IsDuration reports whether s is an absolute duration like "10d".
func IsDuration(s string) bool {
	return durationPattern.MatchString(s)
}

// IsCoefficient reports whether s is a coefficient like "x1.5".
func IsCoefficient(s string) bool {
	return coefficientPattern.MatchString(s)
}

// Valid reports whether s is either a duration or a coefficient.
func Valid(s string) bool {
	return IsDuration(s) || IsCoefficient(s)
}

// Millis converts an absolute duration string to milliseconds.
func Millis(s string) (int64, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelayFormat, s)
	}
	amount, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidDelayFormat, s, err)
	}
	unit := unitMillis(m[2][0])
	if amount > math.MaxInt64/unit {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidDelayFormat, s)
	}
	return amount * unit, nil
}

// Coefficient returns the multiplier of a coefficient string.
func Coefficient(s string) (float64, error) {
	m := coefficientPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelayFormat, s)
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidDelayFormat, s, err)
	}
	return f, nil
}

// FromMillis expresses ms as a duration string. The value is rounded to whole
// seconds, saturated at MaxMillis and written in the largest unit that
// divides it exactly.
func FromMillis(ms int64) string {
	ms = min(ms, MaxMillis)
	secs := ms / Second
	if ms%Second >= Second/2 {
		secs++
	}
	if secs <= 0 {
		return "0s"
	}
	ms = secs * Second
	for _, u := range units {
		if ms%u.millis == 0 {
			return strconv.FormatInt(ms/u.millis, 10) + string(u.suffix)
		}
	}
	return strconv.FormatInt(secs, 10) + "s"
}

// Resolve turns requested into an absolute duration. A coefficient is applied
// to current, which must itself be an absolute duration.
func Resolve(current, requested string) (string, error) {
	if IsDuration(requested) {
		return requested, nil
	}
	coef, err := Coefficient(requested)
	if err != nil {
		return "", err
	}
	base, err := Millis(current)
	if err != nil {
		return "", err
	}
	product := float64(base) * coef
	if product >= float64(MaxMillis) {
		return FromMillis(MaxMillis), nil
	}
	return FromMillis(int64(math.Round(product))), nil
}

// WithinLimit reports whether s is an absolute duration no longer than
// MaxDelayLimit.
func WithinLimit(s string) bool {
	ms, err := Millis(s)
	return err == nil && ms <= MaxDelayLimit
}

// FormatMillis renders a signed span as "2d 3h 5m 10s", skipping zero
// components. Spans shorter than a second render as "0s".
func FormatMillis(ms int64) string {
	var b strings.Builder
	if ms < 0 {
		b.WriteByte('-')
		ms = -ms
	}
	rest := ms
	wrote := false
	for _, u := range units[1:] {
		n := rest / u.millis
		rest %= u.millis
		if n == 0 {
			continue
		}
		if wrote {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatInt(n, 10))
		b.WriteByte(u.suffix)
		wrote = true
	}
	if !wrote {
		return "0s"
	}
	return b.String()
}
