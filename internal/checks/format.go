package checks

import (
	"fmt"
	"strings"
	"time"

	"github.com/lalithlochan/pushwatch/internal/db"
)

// summarize joins up to max examples and appends "+N more" for the rest.
func summarize(examples []string, max int) string {
	if max <= 0 || len(examples) <= max {
		return strings.Join(examples, "; ")
	}
	return fmt.Sprintf("%s +%d more", strings.Join(examples[:max], "; "), len(examples)-max)
}

// formatOrder renders "type (code) | remaining: N", leaving out absent parts.
func formatOrder(o *db.Order) string {
	var b strings.Builder
	b.WriteString(o.ProductType)
	if o.Code != nil && *o.Code != "" {
		fmt.Fprintf(&b, " (%s)", *o.Code)
	}
	if o.Remaining != nil {
		fmt.Fprintf(&b, " | remaining: %d", *o.Remaining)
	}
	return b.String()
}

// formatStock renders "name (code): remaining".
func formatStock(it *db.StockItem) string {
	if it.Code != nil && *it.Code != "" {
		return fmt.Sprintf("%s (%s): %d", it.Name, *it.Code, it.Remaining)
	}
	return fmt.Sprintf("%s: %d", it.Name, it.Remaining)
}

// calendarDay returns the date part of t as midnight in loc. Due dates are
// calendar dates, so their fields are taken as stored rather than converted.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// today returns the current date in loc.
func today(now time.Time, loc *time.Location) time.Time {
	return calendarDay(now.In(loc), loc)
}
