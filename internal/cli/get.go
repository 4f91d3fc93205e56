package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-service/internal/models"
	"github.com/kjstillabower/forecast-service/internal/observability"
)

// forecastLookup is what `get` needs; opened lazily so tests can substitute it.
type forecastLookup interface {
	GetWeather(ctx context.Context, location string) (*models.ForecastRecord, error)
}

type lookupOpener func() (forecastLookup, func(), error)

func newGetCommand(open lookupOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "get <location>",
		Short: "Print the forecast for a location",
		Long:  "Print up to 7 days of forecast for a location, using the same cache as the server.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lookup, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			rec, err := lookup.GetWeather(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("no forecast data for %q", strings.Join(args, " "))
			}
			return printForecast(cmd.OutOrStdout(), rec)
		},
	}
}

// openFromConfig builds the real service with a console logger.
func openFromConfig() (forecastLookup, func(), error) {
	logger, err := observability.NewConsoleLogger()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	deps, err := build(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return deps.service, func() {
		if err := deps.Close(); err != nil {
			logger.Warn("cache close", zap.Error(err))
		}
		_ = logger.Sync()
	}, nil
}

func printForecast(w io.Writer, rec *models.ForecastRecord) error {
	fmt.Fprintf(w, "LOCATION\t%s\n", rec.Location)
	fmt.Fprintf(w, "UPDATED\t\t%s\n\n", rec.Timestamp)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tDAY\tNIGHT\tHUMIDITY\tICON")
	for _, d := range rec.Forecast {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Date, d.TempDay, d.TempNight, d.Humidity, iconName(d.Icon))
	}
	return tw.Flush()
}

// iconName turns "/static/icons/partly-cloudy-day.png" back into "partly-cloudy-day".
func iconName(path string) string {
	name := path[strings.LastIndex(path, "/")+1:]
	return strings.TrimSuffix(name, ".png")
}
