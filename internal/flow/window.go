package flow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	partOfDay = map[string][2]int{
		"morning":   {8, 12},
		"afternoon": {12, 17},
		"evening":   {17, 20},
	}
	weekdays = map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
		"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
	}
	clockPattern = regexp.MustCompile(`^(?:at\s+)?(\d{1,2})(?::(\d{2}))?(am|pm)?$`)
)

// ResolveWindow turns a normalized time preference into a concrete search
// window in loc. A window that has already passed is clipped to now and may
// come back empty (from == to).
func ResolveWindow(pref string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	pref = strings.TrimSpace(strings.ToLower(pref))
	if pref == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("empty time preference")
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var from, to time.Time
	dayWord, rest, _ := strings.Cut(pref, " ")
	switch {
	case pref == "next week":
		daysToMonday := (int(time.Monday) - int(today.Weekday()) + 7) % 7
		if daysToMonday == 0 {
			daysToMonday = 7
		}
		from = today.AddDate(0, 0, daysToMonday)
		to = from.AddDate(0, 0, 7)
		return clip(from, to, now)
	case dayWord == "today":
		from = today
	case dayWord == "tomorrow":
		from = today.AddDate(0, 0, 1)
	default:
		wd, ok := weekdays[dayWord]
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("unrecognized time preference %q", pref)
		}
		from = today.AddDate(0, 0, (int(wd)-int(today.Weekday())+7)%7)
	}
	day := from

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return clip(day, day.AddDate(0, 0, 1), now)
	}
	if hours, ok := partOfDay[rest]; ok {
		return clip(atHour(day, hours[0], 0), atHour(day, hours[1], 0), now)
	}

	m := clockPattern.FindStringSubmatch(rest)
	if m == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("unrecognized time preference %q", pref)
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch m[3] {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	default:
		// Without a meridiem, small hours are afternoon appointments.
		if hour >= 1 && hour <= 7 {
			hour += 12
		}
	}
	at := atHour(day, hour, minute)
	return clip(at.Add(-time.Hour), at.Add(time.Hour), now)
}

func atHour(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func clip(from, to, now time.Time) (time.Time, time.Time, error) {
	if from.Before(now) {
		from = now
	}
	if to.Before(from) {
		to = from
	}
	return from, to, nil
}
