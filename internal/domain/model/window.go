package model

import "time"

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// MonthWindow returns the calendar month of year/month in loc.
func MonthWindow(year int, month time.Month, loc *time.Location) Window {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// CurrentMonthWindow returns the calendar month containing now, as observed in loc.
func CurrentMonthWindow(now time.Time, loc *time.Location) Window {
	local := now.In(loc)
	return MonthWindow(local.Year(), local.Month(), loc)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
