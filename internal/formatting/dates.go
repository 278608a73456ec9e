package formatting

import (
	"errors"
	"fmt"
	"time"
)

const (
	// Timestamps as stored on cases and notes, e.g. 2019-01-01 12:12:12.000000
	spacedLayout = "2006-01-02 15:04:05.999999"
	// ISO-8601 timestamps used by dataset activity, e.g. 2019-01-01T12:12:12.000000
	isoLayout = "2006-01-02T15:04:05.999999"

	// maxStampLen is the length of a timestamp with microseconds; anything
	// after it (offsets, extra precision) is ignored.
	maxStampLen = len("2006-01-02 15:04:05.000000")

	secondsLen = len("2006-01-02 15:04:05")
)

var errMissingFraction = errors.New("timestamp has no fractional seconds")

// checkFraction requires "." and 1-6 digits after the seconds. time.Parse
// treats the fraction in the layouts as optional.
func checkFraction(value string) error {
	if len(value) < secondsLen+2 || value[secondsLen] != '.' {
		return errMissingFraction
	}
	for _, c := range value[secondsLen+1:] {
		if c < '0' || c > '9' {
			return errMissingFraction
		}
	}
	return nil
}

func parseStamp(layout, value string) (time.Time, error) {
	if err := checkFraction(value); err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

// ParseSpaced parses a case/note timestamp
func ParseSpaced(value string) (time.Time, error) {
	if len(value) > maxStampLen {
		value = value[:maxStampLen]
	}
	return parseStamp(spacedLayout, value)
}

// ParseISO parses a dataset activity timestamp
func ParseISO(value string) (time.Time, error) {
	if len(value) > maxStampLen {
		return time.Time{}, fmt.Errorf("parse timestamp %q: too long", value)
	}
	return parseStamp(isoLayout, value)
}

// FormatDate renders a case timestamp as DD/MM/YYYY
func FormatDate(value string) (string, error) {
	t, err := ParseSpaced(value)
	if err != nil {
		return "", err
	}
	return t.Format("02/01/2006"), nil
}

// FormatTextDate renders an ISO timestamp as "DD Month YYYY"
func FormatTextDate(value string) (string, error) {
	t, err := ParseISO(value)
	if err != nil {
		return "", err
	}
	return textDate(t), nil
}

// FormatDateAndTime renders an ISO timestamp as "DD Month YYYY HH:MM"
func FormatDateAndTime(value string) (string, error) {
	t, err := ParseISO(value)
	if err != nil {
		return "", err
	}
	return t.Format("02 January 2006 15:04"), nil
}

func textDate(t time.Time) string {
	return t.Format("02 January 2006")
}
