package models

import "errors"

// DateLayout is the layout of ForecastRecord.Timestamp and of "today" comparisons.
const DateLayout = "2006-01-02"

// MaxForecastDays caps the number of days kept from an upstream payload.
const MaxForecastDays = 7

var (
	ErrCacheUnavailable = errors.New("cache unavailable")
	ErrFetchFailed      = errors.New("forecast fetch failed")
	ErrPayloadMalformed = errors.New("forecast payload malformed")
	ErrInvalidLocation  = errors.New("invalid location")
)

// DayForecast is one display-ready day of a forecast.
type DayForecast struct {
	Date      string `json:"date"`
	TempDay   string `json:"temp_day"`
	TempNight string `json:"temp_night"`
	Humidity  string `json:"humidity"`
	Icon      string `json:"icon"`
}

// ForecastRecord is what the cache stores per location and what callers receive.
// Timestamp is the calendar date (DateLayout) the record was fetched on.
type ForecastRecord struct {
	Timestamp string        `json:"timestamp"`
	Location  string        `json:"location"`
	Forecast  []DayForecast `json:"forecast"`
}

// Document maps a normalized location key to its cached record.
type Document map[string]ForecastRecord
