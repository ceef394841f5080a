package workspace

import (
	"errors"
	"strconv"
	"time"
)

type (
	// TimeParser turns one raw metadata value into a time. A zero time means
	// the value did not hold a usable timestamp.
	TimeParser func(v any) (time.Time, error)

	Extractor struct {
		Source string
		Parse  TimeParser
	}
)

var (
	ErrInvalidTimeValue = errors.New("invalid time value")

	// ModifiedTimeExtractors is tried in order by ModifiedAt, the first
	// non-zero result wins.
	ModifiedTimeExtractors = []Extractor{
		{Source: "modifiedTime", Parse: ParseUnixMillis},
		{Source: "lastModifiedTime", Parse: ParseUnixMillis},
		{Source: "modified_time", Parse: ParseUnixMillis},
		{Source: "updatedAt", Parse: ParseTimeString},
		{Source: "updated_at", Parse: ParseTimeString},
		{Source: "revisionTime", Parse: ParseUnixSeconds},
	}
)

// ModifiedAt returns the table's last modification time from its metadata,
// or the zero time when no extractor matched.
func ModifiedAt(meta map[string]any) time.Time {
	return ExtractTime(meta, ModifiedTimeExtractors)
}

func ExtractTime(meta map[string]any, extractors []Extractor) time.Time {
	for _, ex := range extractors {
		raw, exists := meta[ex.Source]
		if !exists || raw == nil {
			continue
		}
		t, err := ex.Parse(raw)
		if err != nil {
			logger.Debug().Err(err).Str("source", ex.Source).Msg("skipping unparsable time")
			continue
		}
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

func ParseUnixMillis(v any) (time.Time, error) {
	n, err := toInt64(v)
	if err != nil || n <= 0 {
		return time.Time{}, err
	}
	return time.UnixMilli(n).UTC(), nil
}

func ParseUnixSeconds(v any) (time.Time, error) {
	n, err := toInt64(v)
	if err != nil || n <= 0 {
		return time.Time{}, err
	}
	return time.Unix(n, 0).UTC(), nil
}

// ParseTimeString accepts RFC3339 strings (with or without fractional
// seconds) and time.Time values.
func ParseTimeString(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case string:
		if val == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, val)
		if err != nil {
			return time.Time{}, ErrInvalidTimeValue
		}
		return t, nil
	default:
		return time.Time{}, ErrInvalidTimeValue
	}
}

func toInt64(v any) (int64, error) {
	switch val := v.(type) {
	case float64:
		return int64(val), nil
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, ErrInvalidTimeValue
		}
		return n, nil
	default:
		return 0, ErrInvalidTimeValue
	}
}
