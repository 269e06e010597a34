package accounts

import (
	"time"

	"github.com/goliatone/go-errors"
)

// IsOutsideThresholdPeriod reports whether the reference time is further in
// the past than the given period, e.g. "24h".
func IsOutsideThresholdPeriod(reference time.Time, period string) (bool, error) {
	threshold, err := time.ParseDuration(period)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryBadInput, "invalid threshold period")
	}

	return time.Since(reference) > threshold, nil
}

// IsWithinThresholdPeriod is the complement of IsOutsideThresholdPeriod
func IsWithinThresholdPeriod(reference time.Time, period string) (bool, error) {
	outside, err := IsOutsideThresholdPeriod(reference, period)
	if err != nil {
		return false, err
	}
	return !outside, nil
}
