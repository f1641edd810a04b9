package interpret

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TimeRule is one entry of the time preference priority table.
type TimeRule struct {
	Name    string
	Extract func(text string) (string, bool)
}

// TimePreferenceRules is applied in order, first match wins:
// time of day > specific clock time > weekday > relative day > week reference.
var TimePreferenceRules = []TimeRule{
	{Name: "time_of_day", Extract: extractTimeOfDay},
	{Name: "clock_time", Extract: extractClockTime},
	{Name: "weekday", Extract: extractWeekday},
	{Name: "relative_day", Extract: extractRelativeDay},
	{Name: "week", Extract: extractWeek},
}

var (
	timeOfDayRe  = regexp.MustCompile(`\b(?:(this|today|tomorrow)\s+)?(morning|afternoon|arvo|evening)\b`)
	clockTimeRe  = regexp.MustCompile(`\b(?:(this|today|tomorrow)\s+)?(?:(at|around|about)\s+)?(\d{1,2})(?::([0-5]\d))?(?:\s*(?:(am|pm)\b|(a\.m\.|p\.m\.)))?`)
	weekdayRe    = regexp.MustCompile(`\b(?:(?:next|this)\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	relativeRe   = regexp.MustCompile(`\b(tomorrow|today)\b`)
	weekRe       = regexp.MustCompile(`\b(next|this)\s+week\b`)
	dayQualifier = map[string]string{"this": "today", "today": "today", "tomorrow": "tomorrow"}
)

// ExtractTimePreference returns the caller's normalized time window, or false when
// the text carries none. It is pure: the same text always yields the same result.
func ExtractTimePreference(text string) (string, bool) {
	text = Normalize(text)
	if text == "" {
		return "", false
	}
	for _, rule := range TimePreferenceRules {
		if out, ok := rule.Extract(text); ok {
			return out, true
		}
	}
	return "", false
}

func extractTimeOfDay(text string) (string, bool) {
	m := timeOfDayRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	day := "today"
	if m[1] != "" {
		day = dayQualifier[m[1]]
	}
	part := m[2]
	if part == "arvo" {
		part = "afternoon"
	}
	return day + " " + part, true
}

func extractClockTime(text string) (string, bool) {
	for _, idx := range clockTimeRe.FindAllStringSubmatchIndex(text, -1) {
		group := func(i int) string {
			if idx[2*i] < 0 {
				return ""
			}
			return text[idx[2*i]:idx[2*i+1]]
		}
		// The hour must not be the prefix of a longer number ("1234").
		hourEnd := idx[7]
		if group(4) == "" && hourEnd < len(text) && text[hourEnd] >= '0' && text[hourEnd] <= '9' {
			continue
		}
		if idx[9] >= 0 && idx[9] < len(text) && text[idx[9]] >= '0' && text[idx[9]] <= '9' {
			continue
		}

		qualifier, prefix, minutes := group(1), group(2), group(4)
		meridiem := strings.ReplaceAll(group(5)+group(6), ".", "")
		if prefix == "" && minutes == "" && meridiem == "" {
			continue
		}

		hour, err := strconv.Atoi(group(3))
		if err != nil || hour == 0 || hour > 23 {
			continue
		}
		if hour > 12 {
			if meridiem != "" {
				continue
			}
			hour -= 12
			meridiem = "pm"
		}

		clock := strconv.Itoa(hour)
		if minutes != "" {
			clock += ":" + minutes
		}

		if qualifier == "" {
			if meridiem == "" {
				meridiem = "pm"
			}
			return "today " + clock + meridiem, true
		}
		day := dayQualifier[qualifier]
		if meridiem == "" {
			return fmt.Sprintf("%s at %s", day, clock), true
		}
		return day + " " + clock + meridiem, true
	}
	return "", false
}

func extractWeekday(text string) (string, bool) {
	m := weekdayRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func extractRelativeDay(text string) (string, bool) {
	m := relativeRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func extractWeek(text string) (string, bool) {
	m := weekRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	if m[1] == "next" {
		return "next week", true
	}
	return "today", true
}
