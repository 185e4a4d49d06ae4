package operator

import (
	"fmt"
	"strings"
	"time"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Now is the clock used by temporal operators. Tests override it to pin
// evaluation to a fixed instant.
var Now = time.Now

func registerTemporal(r *Registry) {
	register(r, "before_date", func(field, value any, _ *contracts.Context) bool {
		ft, ok := toTime(field)
		if !ok {
			return false
		}
		vt, ok := toTime(value)
		if !ok {
			return false
		}
		return ft.Truncate(time.Second).Before(vt.Truncate(time.Second))
	}, requireTimeValue)

	register(r, "after_date", func(field, value any, _ *contracts.Context) bool {
		ft, ok := toTime(field)
		if !ok {
			return false
		}
		vt, ok := toTime(value)
		if !ok {
			return false
		}
		return ft.Truncate(time.Second).After(vt.Truncate(time.Second))
	}, requireTimeValue)

	register(r, "within_days", func(field, value any, _ *contracts.Context) bool {
		ft, ok := toTime(field)
		if !ok {
			return false
		}
		days, ok := toFloat(value)
		if !ok || days < 0 {
			return false
		}
		delta := Now().Sub(ft)
		if delta < 0 {
			delta = -delta
		}
		return delta <= time.Duration(days*24)*time.Hour
	}, requireNumberValue)

	register(r, "day_of_week", applyDayOfWeek, nil)

	registerComponent(r, "hour_of_day", func(t time.Time) float64 { return float64(t.Hour()) })
	registerComponent(r, "day_of_month", func(t time.Time) float64 { return float64(t.Day()) })
	registerComponent(r, "month", func(t time.Time) float64 { return float64(t.Month()) })
	registerComponent(r, "year", func(t time.Time) float64 { return float64(t.Year()) })
	registerComponent(r, "week_of_year", func(t time.Time) float64 {
		_, week := t.ISOWeek()
		return float64(week)
	})

	registerShift(r, "add_days", "days", 24*time.Hour, 1)
	registerShift(r, "subtract_days", "days", 24*time.Hour, -1)
	registerShift(r, "add_hours", "hours", time.Hour, 1)
	registerShift(r, "subtract_hours", "hours", time.Hour, -1)
	registerShift(r, "add_minutes", "minutes", time.Minute, 1)
	registerShift(r, "subtract_minutes", "minutes", time.Minute, -1)

	registerDuration(r, "duration_seconds", time.Second)
	registerDuration(r, "duration_minutes", time.Minute)
	registerDuration(r, "duration_hours", time.Hour)
	registerDuration(r, "duration_days", 24*time.Hour)
}

// applyDayOfWeek accepts an integer (Sunday=0) or a weekday name.
func applyDayOfWeek(field, value any, _ *contracts.Context) bool {
	ft, ok := toTime(field)
	if !ok {
		return false
	}
	weekday := ft.Weekday()
	if n, ok := toInt(value); ok {
		return int64(weekday) == n
	}
	if name, ok := value.(string); ok {
		return strings.EqualFold(weekday.String(), name)
	}
	return false
}

// registerComponent installs an operator that extracts a calendar
// component and compares it against a scalar or threshold map.
func registerComponent(r *Registry, name string, extract func(time.Time) float64) {
	register(r, name, func(field, value any, _ *contracts.Context) bool {
		ft, ok := toTime(field)
		if !ok {
			return false
		}
		return compareWithSpec(extract(ft), value, 0)
	}, nil)
}

// registerShift installs a temporal arithmetic operator: shift the field
// timestamp by value[unitKey] units and compare against value.target at
// second resolution with value.compare.
func registerShift(r *Registry, name, unitKey string, unit time.Duration, sign int) {
	register(r, name, func(field, value any, ctx *contracts.Context) bool {
		ft, ok := toTime(field)
		if !ok {
			return false
		}
		m, ok := toMap(value)
		if !ok {
			return false
		}
		amount, ok := toFloat(m[unitKey])
		if !ok {
			return false
		}
		cmp, _ := m["compare"].(string)
		if cmp == "" {
			cmp = "eq"
		}
		target, ok := resolveTimeTarget(m["target"], ctx, Now())
		if !ok {
			return false
		}
		shifted := ft.Add(time.Duration(float64(sign) * amount * float64(unit)))
		diff := shifted.Truncate(time.Second).Sub(target.Truncate(time.Second)).Seconds()
		return compareOne(diff, cmp, 0, 0.5)
	}, func(value any) error {
		if err := requireMapKeys(value, unitKey, "target"); err != nil {
			return err
		}
		m, _ := toMap(value)
		if cmp, ok := m["compare"].(string); ok && cmp != "" {
			if !isComparisonKey(cmp) {
				return fmt.Errorf("compare must be one of %v", comparisonKeys)
			}
		}
		return nil
	})
}

// registerDuration installs a duration operator: elapsed = end - field in
// the given unit, checked against the comparison keys carried in value.
func registerDuration(r *Registry, name string, unit time.Duration) {
	register(r, name, func(field, value any, ctx *contracts.Context) bool {
		ft, ok := toTime(field)
		if !ok {
			return false
		}
		m, ok := toMap(value)
		if !ok {
			return false
		}
		end, ok := resolveTimeTarget(m["end"], ctx, Now())
		if !ok {
			return false
		}
		elapsed := end.Truncate(time.Second).Sub(ft.Truncate(time.Second))
		thresholds := make(map[string]any, len(m))
		for k, v := range m {
			if isComparisonKey(k) {
				thresholds[k] = v
			}
		}
		if len(thresholds) == 0 {
			return false
		}
		return compareWithSpec(elapsed.Seconds()/unit.Seconds(), thresholds, defaultTolerance)
	}, func(value any) error {
		if err := requireMapKeys(value, "end"); err != nil {
			return err
		}
		m, _ := toMap(value)
		for k := range m {
			if isComparisonKey(k) {
				return nil
			}
		}
		return fmt.Errorf("value must carry at least one comparison key")
	})
}

func isComparisonKey(k string) bool {
	for _, key := range comparisonKeys {
		if k == key {
			return true
		}
	}
	return false
}

func requireTimeValue(value any) error {
	if _, ok := toTime(value); !ok {
		return fmt.Errorf("value must be an ISO-8601 timestamp")
	}
	return nil
}

func requireNumberValue(value any) error {
	if _, ok := toFloat(value); !ok {
		return fmt.Errorf("value must be a number")
	}
	return nil
}
