package models

// CurrentWeather is the normalized snapshot for "now" at a location.
type CurrentWeather struct {
	ObservedDate   string  `json:"observed_date"`
	ConditionCode  *string `json:"condition_code"`
	ConditionTitle *string `json:"condition_title"`
	TemperatureC   int     `json:"temperature_c"`
	FeelsLikeC     int     `json:"feels_like_c"`
	HumidityPct    int     `json:"humidity_pct"`
	WindSpeed      int     `json:"wind_speed"`
}

// DailyForecastSummary aggregates one calendar day of 3-hour forecast entries.
// Numeric fields are nil when no entry in the day carried the source value.
type DailyForecastSummary struct {
	Date            string  `json:"date"`
	MaxTemperatureC *int    `json:"max_temperature_c"`
	MinTemperatureC *int    `json:"min_temperature_c"`
	HumidityPct     *int    `json:"humidity_pct"`
	WindSpeed       *int    `json:"wind_speed"`
	ConditionCode   *string `json:"condition_code"`
	ConditionTitle  *string `json:"condition_title"`
}

// WeatherResult pairs served data with the age of the cache entry it came from.
type WeatherResult[T any] struct {
	Data            T    `json:"data"`
	CacheAgeSeconds *int `json:"cache_age_seconds"`
}

// WeatherQuery identifies a location for a weather lookup.
type WeatherQuery struct {
	Country    string  `json:"country"`
	PostalCode string  `json:"postcode"`
	Latitude   float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude  float64 `json:"longitude" validate:"gte=-180,lte=180"`
}
