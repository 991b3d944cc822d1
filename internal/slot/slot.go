// Package slot maps the wall clock onto the publication buckets of the
// last-mile forward fake detection report.
package slot

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownHour is returned by Parse for hour labels the upstream never publishes.
var ErrUnknownHour = errors.New("unknown report hour")

const (
	dateLayout   = "2006.01.02"
	filePrefix   = "EkartReport-LAST_MILE-FWD-"
	fileExt      = ".csv"
	previousHour = "23.59"
)

// bucket starts at the given minute of day and lasts until the next one.
type bucket struct {
	from int
	hour string
}

// Ordered by start; anything before the first start belongs to the previous day.
var buckets = []bucket{
	{12*60 + 30, "12.00"},
	{14*60 + 30, "14.00"},
	{16*60 + 30, "16.00"},
	{19 * 60, "18.30"},
	{21*60 + 30, "20.00"},
	{22*60 + 30, "22.00"},
}

// Hours lists every hour label in publication order.
func Hours() []string {
	out := []string{previousHour}
	for _, b := range buckets {
		out = append(out, b.hour)
	}
	return out
}

// Slot identifies one published report batch.
type Slot struct {
	Date time.Time
	Hour string
}

// Resolve returns the slot whose files are expected at now (local time of now's location).
func Resolve(now time.Time) Slot {
	minute := now.Hour()*60 + now.Minute()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if minute < buckets[0].from {
		return Slot{Date: day.AddDate(0, 0, -1), Hour: previousHour}
	}
	hour := buckets[0].hour
	for _, b := range buckets {
		if minute >= b.from {
			hour = b.hour
		}
	}
	return Slot{Date: day, Hour: hour}
}

// Parse builds a slot from an explicit date (YYYY-MM-DD or YYYY.MM.DD) and hour label.
func Parse(date, hour string, loc *time.Location) (Slot, error) {
	if loc == nil {
		loc = time.Local
	}
	var (
		d   time.Time
		err error
	)
	for _, layout := range []string{"2006-01-02", dateLayout} {
		d, err = time.ParseInLocation(layout, date, loc)
		if err == nil {
			break
		}
	}
	if err != nil {
		return Slot{}, fmt.Errorf("invalid report date %q", date)
	}
	for _, h := range Hours() {
		if h == hour {
			return Slot{Date: d, Hour: hour}, nil
		}
	}
	return Slot{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownHour, hour, Hours())
}

// FileName returns the name of the n-th file (1-based) in the slot.
func (s Slot) FileName(n int) string {
	return fmt.Sprintf("%s%s-%s-%d%s", filePrefix, s.Date.Format(dateLayout), s.Hour, n, fileExt)
}

func (s Slot) String() string {
	return s.Date.Format(dateLayout) + " " + s.Hour
}
