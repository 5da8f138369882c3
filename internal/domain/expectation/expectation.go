package expectation

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates an expectation was not found.
	ErrNotFound = errors.New("expectation not found")
	// ErrNoAction indicates an expectation declares no action.
	ErrNoAction = errors.New("expectation has no action")
	// ErrMultipleActions indicates an expectation declares more than one action.
	ErrMultipleActions = errors.New("expectation declares more than one action")
)

// Expectation maps a request matcher to an action, with priority and lifetime controls.
type Expectation struct {
	ID         string
	Priority   int
	Request    RequestDefinition // nil matches any request
	Action     Action
	Times      Times
	TimeToLive TimeToLive
	Created    time.Time
}

// Times is the remaining-use counter of an expectation.
type Times struct {
	RemainingTimes int
	Unlimited      bool
}

// UnlimitedTimes returns a Times that never runs out.
func UnlimitedTimes() Times {
	return Times{Unlimited: true}
}

// Exactly returns a Times allowing n uses.
func Exactly(n int) Times {
	return Times{RemainingTimes: n}
}

// TimeToLive is the validity window of an expectation.
type TimeToLive struct {
	TimeUnit   TimeUnit
	TimeToLive int64
	EndDate    time.Time
	Unlimited  bool
}

// UnlimitedTTL returns a TimeToLive that never expires.
func UnlimitedTTL() TimeToLive {
	return TimeToLive{Unlimited: true}
}

// Deadline returns the instant after which an expectation created at created
// is expired. ok is false when the window is unlimited.
func (t TimeToLive) Deadline(created time.Time) (deadline time.Time, ok bool) {
	if t.Unlimited {
		return time.Time{}, false
	}
	if !t.EndDate.IsZero() {
		return t.EndDate, true
	}
	if t.TimeToLive <= 0 && t.TimeUnit == "" {
		return time.Time{}, false
	}
	return created.Add(t.TimeUnit.Duration(t.TimeToLive)), true
}

// TimeUnit names a unit of time as used on the wire.
type TimeUnit string

const (
	Days         TimeUnit = "DAYS"
	Hours        TimeUnit = "HOURS"
	Minutes      TimeUnit = "MINUTES"
	Seconds      TimeUnit = "SECONDS"
	Milliseconds TimeUnit = "MILLISECONDS"
	Microseconds TimeUnit = "MICROSECONDS"
	Nanoseconds  TimeUnit = "NANOSECONDS"
)

// Valid reports whether u is a known unit. The empty unit is valid and means milliseconds.
func (u TimeUnit) Valid() bool {
	switch TimeUnit(strings.ToUpper(string(u))) {
	case "", Days, Hours, Minutes, Seconds, Milliseconds, Microseconds, Nanoseconds:
		return true
	}
	return false
}

// Duration converts value expressed in u to a time.Duration.
func (u TimeUnit) Duration(value int64) time.Duration {
	switch TimeUnit(strings.ToUpper(string(u))) {
	case Days:
		return time.Duration(value) * 24 * time.Hour
	case Hours:
		return time.Duration(value) * time.Hour
	case Minutes:
		return time.Duration(value) * time.Minute
	case Seconds:
		return time.Duration(value) * time.Second
	case Microseconds:
		return time.Duration(value) * time.Microsecond
	case Nanoseconds:
		return time.Duration(value)
	default:
		return time.Duration(value) * time.Millisecond
	}
}

// Delay suspends an action before it produces its outcome.
type Delay struct {
	TimeUnit TimeUnit
	Value    int64
}

// Duration returns the delay as a time.Duration. A nil delay is zero.
func (d *Delay) Duration() time.Duration {
	if d == nil || d.Value <= 0 {
		return 0
	}
	return d.TimeUnit.Duration(d.Value)
}
