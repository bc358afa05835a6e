package payment

import (
	"strconv"
	"strings"
	"time"

	"github.com/templui/paykit/internal/model"
)

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func int64Ptr(n int64) *int64 {
	return &n
}

// unixPtr converts a unix timestamp, treating zero as absent.
func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// parseTime accepts the RFC 3339 variants vendors send. Empty or invalid input yields nil.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000000Z07:00", "2006-01-02 15:04:05"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// idString renders numeric vendor ids (Lemon Squeezy) as strings.
func idString(n int64) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatInt(n, 10)
}

func normalizeInterval(interval string) *string {
	switch strings.ToLower(interval) {
	case "month", "monthly":
		v := model.IntervalMonth
		return &v
	case "year", "yearly", "annual":
		v := model.IntervalYear
		return &v
	default:
		return nil
	}
}
