package normalize

import (
	"fmt"
	"math"
	"time"

	"github.com/kjstillabower/address-weather-service/internal/models"
)

const groupKeyLayout = "2006-01-02"

// OpenWeatherCurrent builds a CurrentWeather from an OpenWeatherMap current
// weather payload. The observed date comes from now, not the payload. Absent or
// non-numeric values become 0; present values are truncated toward zero.
func OpenWeatherCurrent(raw map[string]any, now time.Time) models.CurrentWeather {
	code := optionalString(dig(raw, "weather", 0, "icon"))
	return models.CurrentWeather{
		ObservedDate:   now.Format(DisplayDateLayout),
		ConditionCode:  code,
		ConditionTitle: ConditionTitle(code),
		TemperatureC:   truncate(dig(raw, "main", "temp")),
		FeelsLikeC:     truncate(dig(raw, "main", "feels_like")),
		HumidityPct:    truncate(dig(raw, "main", "humidity")),
		WindSpeed:      truncate(dig(raw, "wind", "speed")),
	}
}

// DayGroup is the set of forecast entries whose timestamp falls on one calendar date.
type DayGroup struct {
	Key     string
	Day     time.Time
	Entries []map[string]any
}

// GroupByDate partitions forecast entries by the calendar date of their dt
// timestamp in loc. Groups are ordered by first occurrence. Entries that are
// not objects or carry no numeric dt are skipped.
func GroupByDate(list []any, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.UTC
	}
	var groups []DayGroup
	index := make(map[string]int)
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		dt, _, ok := number(entry["dt"])
		if !ok {
			continue
		}
		t := time.Unix(int64(dt), 0).In(loc)
		key := t.Format(groupKeyLayout)
		i, seen := index[key]
		if !seen {
			i = len(groups)
			index[key] = i
			groups = append(groups, DayGroup{Key: key, Day: t})
		}
		groups[i].Entries = append(groups[i].Entries, entry)
	}
	return groups
}

// OpenWeatherForecast aggregates an OpenWeatherMap 5 day / 3 hour forecast into
// one summary per calendar date in loc.
func OpenWeatherForecast(raw map[string]any, loc *time.Location) ([]models.DailyForecastSummary, error) {
	summaries := []models.DailyForecastSummary{}
	listVal, present := raw["list"]
	if !present || listVal == nil {
		return summaries, nil
	}
	list, ok := listVal.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: list is %T, want array", ErrMalformedPayload, listVal)
	}
	for _, g := range GroupByDate(list, loc) {
		summaries = append(summaries, summarizeDay(g))
	}
	return summaries, nil
}

func summarizeDay(g DayGroup) models.DailyForecastSummary {
	code := modeIcon(g.Entries)
	return models.DailyForecastSummary{
		Date:            g.Day.Format(DisplayDateLayout),
		MaxTemperatureC: extreme(g.Entries, math.Max, "main", "temp_max"),
		MinTemperatureC: extreme(g.Entries, math.Min, "main", "temp_min"),
		HumidityPct:     mean(g.Entries, "main", "humidity"),
		WindSpeed:       mean(g.Entries, "wind", "speed"),
		ConditionCode:   code,
		ConditionTitle:  ConditionTitle(code),
	}
}

// extreme folds the numeric values at path with pick and rounds half away from zero.
func extreme(entries []map[string]any, pick func(a, b float64) float64, path ...any) *int {
	var (
		acc   float64
		found bool
	)
	for _, e := range entries {
		v, _, ok := number(dig(e, path...))
		if !ok {
			continue
		}
		if !found {
			acc, found = v, true
			continue
		}
		acc = pick(acc, v)
	}
	if !found {
		return nil
	}
	return intPtr(int(math.Round(acc)))
}

// mean averages the numeric values at path. When every value is integral the
// average uses floored integer division; otherwise the float mean is rounded.
func mean(entries []map[string]any, path ...any) *int {
	var (
		sum      float64
		count    int
		integral = true
	)
	for _, e := range entries {
		v, isInt, ok := number(dig(e, path...))
		if !ok {
			continue
		}
		sum += v
		count++
		integral = integral && isInt
	}
	if count == 0 {
		return nil
	}
	if integral {
		return intPtr(int(math.Floor(sum / float64(count))))
	}
	return intPtr(int(math.Round(sum / float64(count))))
}

// modeIcon returns the most frequent non-empty icon across all entries' weather
// items. Ties go to the icon encountered first.
func modeIcon(entries []map[string]any) *string {
	counts := make(map[string]int)
	var order []string
	for _, e := range entries {
		items, _ := e["weather"].([]any)
		for _, item := range items {
			icon := digString(item, "icon")
			if icon == "" {
				continue
			}
			if counts[icon] == 0 {
				order = append(order, icon)
			}
			counts[icon]++
		}
	}
	var best string
	for _, icon := range order {
		if counts[icon] > counts[best] {
			best = icon
		}
	}
	if best == "" {
		return nil
	}
	return &best
}

func truncate(v any) int {
	f, _, ok := number(v)
	if !ok {
		return 0
	}
	return int(f)
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func intPtr(i int) *int {
	return &i
}
