package parser

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/fonfetch/models"
	"github.com/ysmood/gson"
)

// referenceZone is the zone every upstream date is interpreted in.
var referenceZone = loadReferenceZone()

func loadReferenceZone() *time.Location {
	if loc, err := time.LoadLocation("Europe/Istanbul"); err == nil {
		return loc
	}
	return time.FixedZone("TRT", 3*60*60)
}

var (
	reThousandsOnly = regexp.MustCompile(`^[-+]?\d{1,3}(\.\d{3})+$`)
	reGroupedComma  = regexp.MustCompile(`^[-+]?\d{1,3}(\.\d{3})*(,\d+)?$`)
	rePlainComma    = regexp.MustCompile(`^[-+]?\d+(,\d+)?$`)
	rePlainDecimal  = regexp.MustCompile(`^[-+]?\d+(\.\d+)?$`)
	reDottedDate    = regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{4})$`)
	reISODate       = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
	reEpochMillis   = regexp.MustCompile(`^-?\d{10,}$`)
	reMSDate        = regexp.MustCompile(`^/Date\((-?\d+)(?:[+-]\d{4})?\)/$`)
)

// ParseNumber decodes a Turkish-locale number: "1.234,56" is 1234.56 and
// "1.000" is 1000. Percent signs, blanks and non-breaking spaces are
// ignored. "", "-" and any other grouping, such as "1,234.56", yield nil.
func ParseNumber(s string) *float64 {
	s = strings.NewReplacer("%", "", " ", "", "\u00a0", "").Replace(strings.TrimSpace(s))
	if s == "" || s == "-" {
		return nil
	}
	switch {
	case strings.Contains(s, ","):
		if !reGroupedComma.MatchString(s) && !rePlainComma.MatchString(s) {
			return nil
		}
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case reThousandsOnly.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	case !rePlainDecimal.MatchString(s):
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// ParseDate decodes "dd.MM.yyyy", an ISO "yyyy-MM-dd" prefix, epoch
// milliseconds or an ASP.NET "/Date(ms)/" literal into a calendar day of the
// reference zone. Anything else yields nil.
func ParseDate(s string) *models.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if m := reDottedDate.FindStringSubmatch(s); m != nil {
		return civilDate(m[3], m[2], m[1])
	}
	if m := reISODate.FindStringSubmatch(s); m != nil {
		return civilDate(m[1], m[2], m[3])
	}
	if m := reMSDate.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if reEpochMillis.MatchString(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil
		}
		return epochDate(ms)
	}
	return nil
}

func civilDate(year, month, day string) *models.Date {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return nil
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, referenceZone)
	// time.Date normalises 31.02 into March; reject instead.
	if t.Day() != d || int(t.Month()) != m {
		return nil
	}
	return &models.Date{Time: t}
}

func epochDate(ms int64) *models.Date {
	t := time.UnixMilli(ms).In(referenceZone)
	d := models.NewDate(t.Year(), t.Month(), t.Day(), referenceZone)
	return &d
}

// FormatPortalDate renders t as the portal's "dd.MM.yyyy" form value.
func FormatPortalDate(t time.Time) string {
	return t.In(referenceZone).Format("02.01.2006")
}

// numberOf decodes a JSON value that may be a number or a locale string.
func numberOf(j gson.JSON) *float64 {
	switch v := j.Val().(type) {
	case nil:
		return nil
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	case json.Number:
		return ParseNumber(v.String())
	case string:
		return ParseNumber(v)
	default:
		return nil
	}
}

// intOf is numberOf restricted to whole values.
func intOf(j gson.JSON) *int64 {
	f := numberOf(j)
	if f == nil || *f != math.Trunc(*f) || math.Abs(*f) > math.MaxInt64/2 {
		return nil
	}
	i := int64(*f)
	return &i
}

// dateOf decodes a JSON value that may be epoch milliseconds or a string.
func dateOf(j gson.JSON) *models.Date {
	switch v := j.Val().(type) {
	case nil:
		return nil
	case float64:
		if v != math.Trunc(v) {
			return nil
		}
		return epochDate(int64(v))
	case int:
		return epochDate(int64(v))
	case int64:
		return epochDate(v)
	case json.Number:
		return ParseDate(v.String())
	case string:
		return ParseDate(v)
	default:
		return nil
	}
}

// textOf returns a trimmed string value, or nil for null and blanks.
func textOf(j gson.JSON) *string {
	var s string
	switch v := j.Val().(type) {
	case nil:
		return nil
	case string:
		s = strings.TrimSpace(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case json.Number:
		s = v.String()
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}
