package diff

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rpattn/exportval/internal/domain"
)

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.000000",
	"2006/01/02",
	"01/02/2006",
	"02-Jan-2006",
}

// normalize canonicalizes one raw export value per its declared kind so that
// cosmetic differences (whitespace, numeric formatting, date layout, boolean
// spelling) do not register as drift. Values that fail to parse fall back to
// trimmed raw text; a baseline/candidate pair that disagrees will then still
// surface as a mismatch with both raw values recorded.
func normalize(kind domain.ValueKind, raw string) string {
	trimmed := strings.TrimSpace(raw)
	switch kind {
	case domain.ValueKindNumber:
		if dec, err := decimal.NewFromString(trimmed); err == nil {
			return dec.String()
		}
	case domain.ValueKindDate:
		if ts, err := parseTimestamp(trimmed); err == nil {
			return ts.Format("2006-01-02")
		}
	case domain.ValueKindBoolean:
		if b, ok := parseBoolean(trimmed); ok {
			return strconv.FormatBool(b)
		}
	}
	return trimmed
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}

func parseBoolean(raw string) (bool, bool) {
	switch strings.ToLower(raw) {
	case "1", "yes", "y":
		return true, true
	case "0", "no", "n":
		return false, true
	}
	b, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return false, false
	}
	return b, true
}
