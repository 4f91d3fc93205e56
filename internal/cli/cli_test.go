package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kjstillabower/forecast-service/internal/models"
)

type stubLookup struct {
	rec      *models.ForecastRecord
	err      error
	location string
}

func (s *stubLookup) GetWeather(ctx context.Context, location string) (*models.ForecastRecord, error) {
	s.location = location
	return s.rec, s.err
}

func runGet(t *testing.T, lookup *stubLookup, args ...string) (string, error) {
	t.Helper()
	closed := false
	cmd := newGetCommand(func() (forecastLookup, func(), error) {
		return lookup, func() { closed = true }, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	if err == nil && !closed {
		t.Error("lookup was not closed")
	}
	return out.String(), err
}

func TestGetCommand_PrintsTable(t *testing.T) {
	lookup := &stubLookup{rec: &models.ForecastRecord{
		Timestamp: "2026-10-17",
		Location:  "Tel Aviv-Yafo, Israel",
		Forecast: []models.DayForecast{
			{Date: "17/10", TempDay: "27.1°C", TempNight: "21.4°C", Humidity: "64.5%", Icon: "/static/icons/clear-day.png"},
			{Date: "18/10", TempDay: "26°C", TempNight: "20.2°C", Humidity: "70%", Icon: "/static/icons/partly-cloudy-day.png"},
		},
	}}

	out, err := runGet(t, lookup, "tel", "aviv")
	if err != nil {
		t.Fatalf("get error = %v", err)
	}
	if lookup.location != "tel aviv" {
		t.Errorf("looked up %q, want args joined with spaces", lookup.location)
	}
	for _, want := range []string{"Tel Aviv-Yafo, Israel", "2026-10-17", "17/10", "27.1°C", "partly-cloudy-day", "HUMIDITY"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGetCommand_Errors(t *testing.T) {
	if _, err := runGet(t, &stubLookup{err: models.ErrFetchFailed}, "berlin"); !errors.Is(err, models.ErrFetchFailed) {
		t.Errorf("get error = %v, want ErrFetchFailed", err)
	}
	if _, err := runGet(t, &stubLookup{}, "nowhere"); err == nil || !strings.Contains(err.Error(), "no forecast data") {
		t.Errorf("get error = %v, want no forecast data", err)
	}
	if _, err := runGet(t, &stubLookup{}); err == nil {
		t.Error("get with no location should fail argument validation")
	}
}

func TestIconName(t *testing.T) {
	for in, want := range map[string]string{
		"/static/icons/rain.png":        "rain",
		"/static/icons/clear-night.png": "clear-night",
		"snow":                          "snow",
	} {
		if got := iconName(in); got != want {
			t.Errorf("iconName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNew_CommandTree(t *testing.T) {
	root := New()
	for _, name := range []string{"serve", "get"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered: %v", name, err)
		}
	}
	if root.RunE == nil {
		t.Error("root command should default to serve")
	}
}
