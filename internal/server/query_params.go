package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/zeltra/pkg/apperror"
	"github.com/smallbiznis/zeltra/pkg/period"
)

// parsePeriod reads a "2006-01" or "2006-01-02" billing period.
func parsePeriod(value string) (time.Time, error) {
	p, err := period.Parse(value)
	if err != nil {
		return time.Time{}, apperror.Validation(err)
	}
	return p, nil
}

func parseOptionalPeriod(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	p, err := parsePeriod(value)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
