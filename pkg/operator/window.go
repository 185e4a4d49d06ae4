package operator

import (
	"fmt"
	"time"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Moving-window operators aggregate the trailing window of an ordered
// numeric list; rate operators divide event count by the elapsed interval
// between first and last timestamp. Both are order-sensitive by
// construction.
func registerWindows(r *Registry) {
	registerMoving(r, "moving_average", mean)
	registerMoving(r, "moving_sum", sum)
	registerMoving(r, "moving_max", func(xs []float64) float64 {
		m := xs[0]
		for _, x := range xs[1:] {
			if x > m {
				m = x
			}
		}
		return m
	})
	registerMoving(r, "moving_min", func(xs []float64) float64 {
		m := xs[0]
		for _, x := range xs[1:] {
			if x < m {
				m = x
			}
		}
		return m
	})

	registerRate(r, "rate_per_second", time.Second)
	registerRate(r, "rate_per_minute", time.Minute)
	registerRate(r, "rate_per_hour", time.Hour)
}

func registerMoving(r *Registry, name string, reduce func([]float64) float64) {
	register(r, name, func(field, value any, _ *contracts.Context) bool {
		xs, ok := toFloatList(field)
		if !ok || len(xs) == 0 {
			return false
		}
		m, ok := toMap(value)
		if !ok {
			return false
		}
		window, ok := toInt(m["window"])
		if !ok || window <= 0 {
			return false
		}
		if int(window) < len(xs) {
			xs = xs[len(xs)-int(window):]
		}
		thresholds := thresholdKeys(m)
		if len(thresholds) == 0 {
			return false
		}
		return compareWithSpec(reduce(xs), thresholds, defaultTolerance)
	}, func(value any) error {
		if err := requireMapKeys(value, "window"); err != nil {
			return err
		}
		m, _ := toMap(value)
		if len(thresholdKeys(m)) == 0 {
			return fmt.Errorf("value must carry at least one comparison key")
		}
		return nil
	})
}

func registerRate(r *Registry, name string, unit time.Duration) {
	register(r, name, func(field, value any, _ *contracts.Context) bool {
		list, ok := toList(field)
		if !ok || len(list) < 2 {
			return false
		}
		first, ok := toTime(list[0])
		if !ok {
			return false
		}
		last, ok := toTime(list[len(list)-1])
		if !ok {
			return false
		}
		elapsed := last.Sub(first)
		if elapsed <= 0 {
			return false
		}
		rate := float64(len(list)) / (elapsed.Seconds() / unit.Seconds())
		return compareWithSpec(rate, value, defaultTolerance)
	}, nil)
}

func thresholdKeys(m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		if isComparisonKey(k) {
			out[k] = v
		}
	}
	return out
}
