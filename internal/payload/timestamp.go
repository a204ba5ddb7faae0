package payload

import (
	"strconv"
	"strings"
	"time"

	"github.com/ignite/conversion-relay/internal/ads"
)

// Layouts accepted for string timestamps, tried in order. The wire
// layout itself comes first so already-formatted values round-trip.
var timeLayouts = []string{
	ads.ConversionTimeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseConversionTime converts a raw timestamp value into a time.
// Accepted shapes: time.Time, a string in a known layout, a numeric
// epoch (seconds, or milliseconds when > 1e12), a digit string epoch,
// or a slice whose first element is any of the above. The second return
// is false when the value could not be parsed.
func ParseConversionTime(raw interface{}) (time.Time, bool) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case string:
		return parseTimeString(v)
	case float64:
		return fromEpoch(int64(v)), v > 0
	case int:
		return fromEpoch(int64(v)), v > 0
	case int64:
		return fromEpoch(v), v > 0
	case []interface{}:
		if len(v) == 0 {
			return time.Time{}, false
		}
		return ParseConversionTime(v[0])
	default:
		return time.Time{}, false
	}
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// Digit strings are treated as epoch values.
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil && epoch > 0 {
		return fromEpoch(epoch), true
	}
	return time.Time{}, false
}

// fromEpoch interprets values above 1e12 as milliseconds.
func fromEpoch(v int64) time.Time {
	if v > 1_000_000_000_000 {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}
