package database

import (
	"encoding/json"
	"time"
)

// DayLayout is the calendar-day format stored in quiz_stats.last_answered_day.
const DayLayout = "2006-01-02"

// CalendarDay returns t as YYYY-MM-DD in loc.
func CalendarDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayLayout)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// encodeList stores a string list as a JSON array; nil becomes "[]".
func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeList is lenient: malformed JSON yields an empty list.
func decodeList(raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(*raw), &items); err != nil {
		return nil
	}
	return items
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
