// Package schedule detects daily recurring-schedule intent in English and
// Chinese user text and converts it to a five-field cron expression.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

const (
	LangChinese = "zh"
	LangEnglish = "en"

	TimezoneChinese = "Asia/Shanghai"
	TimezoneEnglish = "UTC"
)

// Schedule is an inferred daily schedule.
type Schedule struct {
	Cron     string
	Timezone string
	Hour     int
	Minute   int
	Language string
}

var (
	// A minute after 点 needs a trailing 分 (or is 半); bare digits count only after a colon.
	cnDaily = regexp.MustCompile(`每天(?:的)?\s*(早上|上午|中午|下午|晚上|夜里|凌晨)?\s*(\d{1,2}|[零一二两三四五六七八九十]{1,3})\s*(?:[:：]\s*(\d{1,2})|[点點]\s*(?:(半)|(\d{1,2}|[零一二三四五六七八九十]{1,3})\s*分)?)`)

	enPhrase = `(?:every\s*day|daily|each\s+day)`
	enTime   = `(\d{1,2})(?::([0-5]\d))?\s*(a\.?m\.?|p\.?m\.?)?`

	// 8am every day / at 7:30 daily
	enTimeBefore = regexp.MustCompile(`(?i)(\bat\s+)?\b` + enTime + `\s+` + enPhrase + `\b`)
	// every day at 11pm / daily 8:30am / daily at 18:30
	enTimeAfter = regexp.MustCompile(`(?i)\b` + enPhrase + `\s+(at\s+)?` + enTime + `(?:\b|$)`)
	// at 9 ... daily
	enAtThenPhrase = regexp.MustCompile(`(?i)\bat\s+` + enTime + `\b.*?\b` + enPhrase + `\b`)
)

// Infer scans text for a daily schedule. Chinese patterns are checked first;
// a Chinese match suppresses English evaluation.
func Infer(text string) (Schedule, bool) {
	if s, ok := inferChinese(text); ok {
		return s, true
	}
	return inferEnglish(text)
}

func inferChinese(text string) (Schedule, bool) {
	m := cnDaily.FindStringSubmatch(text)
	if m == nil {
		return Schedule{}, false
	}
	period := m[1]
	hour, ok := parseNumber(m[2])
	if !ok {
		return Schedule{}, false
	}
	minute := 0
	switch {
	case m[4] != "":
		minute = 30
	case m[3] != "" || m[5] != "":
		if minute, ok = parseNumber(m[3] + m[5]); !ok {
			return Schedule{}, false
		}
	}

	switch period {
	case "下午", "晚上", "夜里", "中午":
		if hour < 12 {
			hour += 12
		}
	case "凌晨":
		if hour == 12 {
			hour = 0
		}
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Schedule{}, false
	}
	return newSchedule(hour, minute, TimezoneChinese, LangChinese), true
}

func inferEnglish(text string) (Schedule, bool) {
	if m := enTimeBefore.FindStringSubmatch(text); m != nil {
		at, h, mm, suffix := m[1], m[2], m[3], m[4]
		// A bare number before "daily" ("3 daily posts") is not a time.
		if at != "" || mm != "" || suffix != "" {
			if s, ok := englishSchedule(h, mm, suffix); ok {
				return s, true
			}
		}
	}
	if m := enTimeAfter.FindStringSubmatch(text); m != nil {
		at, h, mm, suffix := m[1], m[2], m[3], m[4]
		if suffix != "" || (at != "" && mm != "") {
			if s, ok := englishSchedule(h, mm, suffix); ok {
				return s, true
			}
		}
	}
	if m := enAtThenPhrase.FindStringSubmatch(text); m != nil {
		if s, ok := englishSchedule(m[1], m[2], m[3]); ok {
			return s, true
		}
	}
	return Schedule{}, false
}

func englishSchedule(h, m, suffix string) (Schedule, bool) {
	hour, err := strconv.Atoi(h)
	if err != nil {
		return Schedule{}, false
	}
	minute := 0
	if m != "" {
		if minute, err = strconv.Atoi(m); err != nil || minute > 59 {
			return Schedule{}, false
		}
	}

	suffix = strings.ToLower(strings.ReplaceAll(suffix, ".", ""))
	switch suffix {
	case "am", "pm":
		if hour < 1 || hour > 12 {
			return Schedule{}, false
		}
		if suffix == "am" && hour == 12 {
			hour = 0
		} else if suffix == "pm" && hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return Schedule{}, false
		}
	}
	return newSchedule(hour, minute, TimezoneEnglish, LangEnglish), true
}

func newSchedule(hour, minute int, tz, lang string) Schedule {
	return Schedule{
		Cron:     fmt.Sprintf("%d %d * * *", minute, hour),
		Timezone: tz,
		Hour:     hour,
		Minute:   minute,
		Language: lang,
	}
}

var cnDigits = map[rune]int{
	'零': 0, '一': 1, '二': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// parseNumber reads Arabic digits or Chinese numerals up to 99.
func parseNumber(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	runes := []rune(s)
	switch len(runes) {
	case 1:
		if runes[0] == '十' {
			return 10, true
		}
		d, ok := cnDigits[runes[0]]
		return d, ok
	case 2:
		if runes[0] == '零' {
			d, ok := cnDigits[runes[1]]
			return d, ok
		}
		if runes[0] == '十' {
			d, ok := cnDigits[runes[1]]
			return 10 + d, ok
		}
		if runes[1] == '十' {
			d, ok := cnDigits[runes[0]]
			return d * 10, ok
		}
	case 3:
		if runes[1] == '十' {
			tens, ok1 := cnDigits[runes[0]]
			ones, ok2 := cnDigits[runes[2]]
			return tens*10 + ones, ok1 && ok2
		}
	}
	return 0, false
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidCron reports whether expr is a valid standard five-field cron expression.
func ValidCron(expr string) bool {
	if strings.TrimSpace(expr) == "" {
		return false
	}
	_, err := cronParser.Parse(expr)
	return err == nil
}
