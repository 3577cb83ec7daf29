package normalize

import (
	"regexp"
	"strings"

	"github.com/sells-group/pharmacy-harvester/internal/model"
)

var (
	allDayRe   = regexp.MustCompile(`24/7|24 sata|24 hours|non[- ]?stop|0:00\s*[-–]\s*24:00`)
	timeSpanRe = regexp.MustCompile(`\d{1,2}:\d{2}\s*[-–]\s*\d{1,2}:\d{2}`)
	sundayRe   = regexp.MustCompile(`(?i)sun|ned(elja|jelja)?`)
	closedRe   = regexp.MustCompile(`(?i)closed|zatvoreno|ne radi`)
)

// ClassifyHours turns free-text opening hours into the day-bucket structure.
// Empty text yields N/A buckets.
func ClassifyHours(text string) model.Hours {
	if strings.TrimSpace(text) == "" {
		return model.Hours{MonFri: model.HoursUnknown, Sat: model.HoursUnknown, Sun: model.HoursUnknown}
	}

	if allDayRe.MatchString(strings.ToLower(text)) {
		return model.Hours{
			Is24h:      true,
			OpenSunday: true,
			MonFri:     model.HoursAllDay,
			Sat:        model.HoursAllDay,
			Sun:        model.HoursAllDay,
		}
	}

	span := timeSpanRe.FindString(text)
	if span == "" {
		span = model.HoursFallback
	}

	h := model.Hours{
		OpenSunday: sundayRe.MatchString(text) && !closedRe.MatchString(text),
		MonFri:     span,
		Sat:        span,
		Sun:        model.HoursClosed,
	}
	if h.OpenSunday {
		h.Sun = span
	}
	return h
}
