package domain

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

var periodPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/(\d{4})$`)

// ParsePeriod splits a MM/YYYY period label.
func ParsePeriod(period string) (int, time.Month, error) {
	m := periodPattern.FindStringSubmatch(period)
	if m == nil {
		return 0, 0, ErrInvalidPeriod
	}
	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	return year, time.Month(month), nil
}

// PeriodEnd returns the last second of the period month in loc.
// Second precision keeps the value stable across MySQL, Postgres and SQLite.
func PeriodEnd(period string, loc *time.Location) (time.Time, error) {
	year, month, err := ParsePeriod(period)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, loc)
	return firstOfNext.Add(-time.Second), nil
}

// AddOneYear adds one calendar year, clamping Feb 29 to Feb 28.
func AddOneYear(t time.Time) time.Time {
	y, m, d := t.Date()
	if last := daysIn(y+1, m, t.Location()); d > last {
		d = last
	}
	return time.Date(y+1, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// ResolveExpiration picks the expiration of a dues record:
// explicit date first, then end of the period month, then payment date + 1 year.
func ResolveExpiration(paymentDate time.Time, period *string, explicit *time.Time, loc *time.Location) (time.Time, error) {
	if explicit != nil && !explicit.IsZero() {
		return *explicit, nil
	}
	if period != nil && *period != "" {
		return PeriodEnd(*period, loc)
	}
	return AddOneYear(paymentDate), nil
}

// IsDuesExpired is the single definition of expiry used by create, update and sweep.
func IsDuesExpired(expiresAt, now time.Time) bool {
	return expiresAt.Before(now)
}

// DeriveDuesStatus returns the time-driven status for an expiration date.
func DeriveDuesStatus(expiresAt, now time.Time) DuesStatus {
	if IsDuesExpired(expiresAt, now) {
		return DuesExpire
	}
	return DuesAJour
}

// DaysRemaining returns whole days until expiresAt, rounded up, never negative.
func DaysRemaining(expiresAt, now time.Time) int {
	if !expiresAt.After(now) {
		return 0
	}
	return int(math.Ceil(expiresAt.Sub(now).Hours() / 24))
}

// ExpiryWindow returns [now, now + days] used by the near-expiry queries.
func ExpiryWindow(now time.Time, days int) (time.Time, time.Time) {
	return now, now.AddDate(0, 0, days)
}
