package server

import (
	"errors"
	"strings"
	"time"

	ledgerdomain "github.com/smallbiznis/consigna/internal/ledger/domain"
)

const dateOnlyLayout = "2006-01-02"

func parseOptionalStatus(value string) (*ledgerdomain.ValidationStatus, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	status, err := ledgerdomain.ParseValidationStatus(trimmed)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func parseOptionalTime(value string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		if endOfDay {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
		} else {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		}
		return &parsed, nil
	}
	return nil, errors.New("invalid_time")
}
