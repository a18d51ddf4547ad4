package sandbox

import (
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/dop251/goja"
)

const isoLayout = "2006-01-02T15:04:05Z07:00"

// moment is the date value handed to scripts as `moment(...)`. It covers the
// parsing, arithmetic, comparison and formatting calls form scripts use.
type moment struct {
	t     time.Time
	valid bool
	utc   bool
}

func newMomentFactory(vm *goja.Runtime, utc bool, live func()) *goja.Object {
	factory := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		live()
		return momentObject(vm, parseMoment(call, utc))
	}).ToObject(vm)
	if !utc {
		_ = factory.Set("utc", newMomentFactory(vm, true, live))
	}
	_ = factory.Set("isMoment", func(v goja.Value) bool {
		obj, ok := v.(*goja.Object)
		if !ok {
			return false
		}
		marker := obj.Get("_isAMomentObject")
		return marker != nil && marker.ToBoolean()
	})
	return factory
}

func parseMoment(call goja.FunctionCall, utc bool) *moment {
	m := &moment{utc: utc}
	arg := call.Argument(0)
	switch {
	case len(call.Arguments) == 0 || goja.IsUndefined(arg):
		m.t, m.valid = time.Now(), true
	case goja.IsNull(arg):
		m.valid = false
	default:
		switch raw := arg.Export().(type) {
		case string:
			if layout := call.Argument(1); !goja.IsUndefined(layout) && layout.String() != "" {
				parsed, err := time.ParseInLocation(momentLayout(layout.String()), raw, location(utc))
				m.t, m.valid = parsed, err == nil
				break
			}
			parsed, err := dateparse.ParseIn(raw, location(utc))
			m.t, m.valid = parsed, err == nil
		case time.Time:
			m.t, m.valid = raw, true
		default:
			ms := arg.ToFloat()
			if math.IsNaN(ms) || math.IsInf(ms, 0) {
				break
			}
			m.t, m.valid = time.UnixMilli(int64(ms)), true
		}
	}
	if m.valid {
		m.t = m.t.In(location(utc))
	}
	return m
}

func location(utc bool) *time.Location {
	if utc {
		return time.UTC
	}
	return time.Local
}

func momentObject(vm *goja.Runtime, m *moment) *goja.Object {
	obj := vm.NewObject()
	other := func(v goja.Value) *moment {
		return parseMoment(goja.FunctionCall{Arguments: []goja.Value{v}}, m.utc)
	}

	_ = obj.Set("_isAMomentObject", true)
	_ = obj.Set("isValid", func() bool { return m.valid })
	_ = obj.Set("valueOf", func() any {
		if !m.valid {
			return math.NaN()
		}
		return m.t.UnixMilli()
	})
	_ = obj.Set("unix", func() int64 { return m.t.Unix() })
	_ = obj.Set("toISOString", func() any {
		if !m.valid {
			return nil
		}
		return m.t.UTC().Format("2006-01-02T15:04:05.000Z")
	})
	_ = obj.Set("toJSON", obj.Get("toISOString"))
	_ = obj.Set("format", func(call goja.FunctionCall) goja.Value {
		if !m.valid {
			return vm.ToValue("Invalid date")
		}
		layout := isoLayout
		if arg := call.Argument(0); !goja.IsUndefined(arg) && arg.String() != "" {
			layout = momentLayout(arg.String())
		}
		return vm.ToValue(m.t.Format(layout))
	})
	_ = obj.Set("toString", obj.Get("format"))
	_ = obj.Set("clone", func() *goja.Object {
		cp := *m
		return momentObject(vm, &cp)
	})
	_ = obj.Set("utc", func() *goja.Object {
		m.utc = true
		m.t = m.t.UTC()
		return obj
	})
	_ = obj.Set("add", func(amount float64, unit string) *goja.Object {
		m.t = shift(m.t, amount, unit)
		return obj
	})
	_ = obj.Set("subtract", func(amount float64, unit string) *goja.Object {
		m.t = shift(m.t, -amount, unit)
		return obj
	})
	_ = obj.Set("startOf", func(unit string) *goja.Object {
		m.t = startOf(m.t, unit)
		return obj
	})
	_ = obj.Set("endOf", func(unit string) *goja.Object {
		start := startOf(m.t, unit)
		m.t = shift(start, 1, unit).Add(-time.Millisecond)
		return obj
	})
	_ = obj.Set("diff", func(v goja.Value, unit string) float64 {
		o := other(v)
		if !m.valid || !o.valid {
			return math.NaN()
		}
		return diff(m.t, o.t, unit)
	})
	_ = obj.Set("isBefore", func(v goja.Value, unit string) bool {
		o := other(v)
		return m.valid && o.valid && startOf(m.t, unit).Before(startOf(o.t, unit))
	})
	_ = obj.Set("isAfter", func(v goja.Value, unit string) bool {
		o := other(v)
		return m.valid && o.valid && startOf(m.t, unit).After(startOf(o.t, unit))
	})
	_ = obj.Set("isSame", func(v goja.Value, unit string) bool {
		o := other(v)
		return m.valid && o.valid && startOf(m.t, unit).Equal(startOf(o.t, unit))
	})
	_ = obj.Set("year", func() int { return m.t.Year() })
	_ = obj.Set("month", func() int { return int(m.t.Month()) - 1 })
	_ = obj.Set("date", func() int { return m.t.Day() })
	_ = obj.Set("day", func() int { return int(m.t.Weekday()) })
	_ = obj.Set("hour", func() int { return m.t.Hour() })
	_ = obj.Set("minute", func() int { return m.t.Minute() })
	return obj
}

func normalizeUnit(unit string) string {
	switch strings.TrimSpace(unit) {
	case "y", "year", "years":
		return "year"
	case "M", "month", "months":
		return "month"
	case "w", "week", "weeks":
		return "week"
	case "d", "day", "days":
		return "day"
	case "h", "hour", "hours":
		return "hour"
	case "m", "minute", "minutes":
		return "minute"
	case "s", "second", "seconds":
		return "second"
	case "ms", "millisecond", "milliseconds", "":
		return "millisecond"
	default:
		return "millisecond"
	}
}

func unitDuration(unit string) time.Duration {
	switch unit {
	case "week":
		return 7 * 24 * time.Hour
	case "day":
		return 24 * time.Hour
	case "hour":
		return time.Hour
	case "minute":
		return time.Minute
	case "second":
		return time.Second
	default:
		return time.Millisecond
	}
}

func shift(t time.Time, amount float64, unit string) time.Time {
	switch u := normalizeUnit(unit); u {
	case "year":
		return t.AddDate(int(amount), 0, 0)
	case "month":
		return t.AddDate(0, int(amount), 0)
	case "day":
		return t.AddDate(0, 0, int(amount))
	default:
		return t.Add(time.Duration(amount * float64(unitDuration(u))))
	}
}

func startOf(t time.Time, unit string) time.Time {
	switch normalizeUnit(unit) {
	case "year":
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case "week":
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		return day.AddDate(0, 0, -int(day.Weekday()))
	case "day":
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case "hour":
		return t.Truncate(time.Hour)
	case "minute":
		return t.Truncate(time.Minute)
	case "second":
		return t.Truncate(time.Second)
	default:
		return t
	}
}

// diff truncates toward zero like moment does.
func diff(a, b time.Time, unit string) float64 {
	switch u := normalizeUnit(unit); u {
	case "year":
		return math.Trunc(monthsBetween(a, b) / 12)
	case "month":
		return math.Trunc(monthsBetween(a, b))
	default:
		return math.Trunc(float64(a.Sub(b)) / float64(unitDuration(u)))
	}
}

func monthsBetween(a, b time.Time) float64 {
	months := float64((a.Year()-b.Year())*12 + int(a.Month()) - int(b.Month()))
	anchor := b.AddDate(0, int(months), 0)
	if a.Before(anchor) && months > 0 {
		months--
	} else if a.After(anchor) && months < 0 {
		months++
	}
	return months
}

var momentTokens = []struct {
	token  string
	layout string
}{
	{"YYYY", "2006"},
	{"YY", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"M", "1"},
	{"DD", "02"},
	{"D", "2"},
	{"dddd", "Monday"},
	{"ddd", "Mon"},
	{"HH", "15"},
	{"H", "15"},
	{"hh", "03"},
	{"h", "3"},
	{"mm", "04"},
	{"m", "4"},
	{"ss", "05"},
	{"s", "5"},
	{"SSS", "000"},
	{"A", "PM"},
	{"a", "pm"},
	{"ZZ", "-0700"},
	{"Z", "-07:00"},
}

// momentLayout converts a moment format string into a Go layout. Text inside
// square brackets is copied literally.
func momentLayout(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); {
		if format[i] == '[' {
			if end := strings.IndexByte(format[i:], ']'); end > 0 {
				b.WriteString(format[i+1 : i+end])
				i += end + 1
				continue
			}
		}
		matched := false
		for _, tok := range momentTokens {
			if strings.HasPrefix(format[i:], tok.token) {
				b.WriteString(tok.layout)
				i += len(tok.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(format[i])
			i++
		}
	}
	return b.String()
}
