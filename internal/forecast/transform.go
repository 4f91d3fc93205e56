// Package forecast turns the upstream daily payload into the display records the
// service caches and serves.
package forecast

import (
	"fmt"
	"time"

	"github.com/kjstillabower/forecast-service/internal/client"
	"github.com/kjstillabower/forecast-service/internal/models"
)

const (
	upstreamDateLayout = "2006-01-02"
	displayDateLayout  = "02/01"

	iconPrefix = "/static/icons/"
	iconSuffix = ".png"
)

// TransformDay maps one upstream day to its display form. A datetime not in
// YYYY-MM-DD form is an upstream contract change and returns ErrPayloadMalformed.
func TransformDay(raw client.RawDay) (models.DayForecast, error) {
	day, err := time.Parse(upstreamDateLayout, raw.Datetime)
	if err != nil {
		return models.DayForecast{}, fmt.Errorf("%w: day datetime %q: %w", models.ErrPayloadMalformed, raw.Datetime, err)
	}
	return models.DayForecast{
		Date:      day.Format(displayDateLayout),
		TempDay:   raw.TempMax.String() + "°C",
		TempNight: raw.TempMin.String() + "°C",
		Humidity:  raw.Humidity.String() + "%",
		Icon:      iconPrefix + raw.Icon + iconSuffix,
	}, nil
}

// TransformForecast builds the record cached for a location. A nil payload means
// "no data" and yields (nil, nil). At most models.MaxForecastDays days are kept, in
// upstream order; shorter payloads are never padded.
func TransformForecast(raw *client.RawForecast, today string) (*models.ForecastRecord, error) {
	if raw == nil {
		return nil, nil
	}

	days := raw.Days
	if len(days) > models.MaxForecastDays {
		days = days[:models.MaxForecastDays]
	}
	out := make([]models.DayForecast, 0, len(days))
	for i, d := range days {
		day, err := TransformDay(d)
		if err != nil {
			return nil, fmt.Errorf("day %d: %w", i, err)
		}
		out = append(out, day)
	}

	return &models.ForecastRecord{
		Timestamp: today,
		Location:  raw.ResolvedAddress,
		Forecast:  out,
	}, nil
}
