package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yanqian/daily-advisor/internal/domain/advice"
	apperrors "github.com/yanqian/daily-advisor/pkg/errors"
)

const (
	defaultForecastURL   = "https://api.open-meteo.com/v1/forecast"
	defaultAirQualityURL = "https://air-quality-api.open-meteo.com/v1/air-quality"
	defaultTimeout       = 5 * time.Second

	// CodeUnavailable marks a failed forecast fetch.
	CodeUnavailable = "environment_unavailable"

	forecastFields   = "temperature_2m,relative_humidity_2m,surface_pressure,uv_index,weather_code"
	airQualityFields = "us_aqi,pm2_5,pm10"
)

// Client fetches current weather and air quality from Open-Meteo.
type Client struct {
	forecastURL   string
	airQualityURL string
	httpClient    *http.Client
	logger        *slog.Logger
	now           func() time.Time
}

// NewClient builds an API client. Empty URLs use the public endpoints.
func NewClient(forecastURL, airQualityURL string, logger *slog.Logger) *Client {
	return &Client{
		forecastURL:   baseURL(forecastURL, defaultForecastURL),
		airQualityURL: baseURL(airQualityURL, defaultAirQualityURL),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger.With("component", "openmeteo.client"),
		now:    time.Now,
	}
}

func baseURL(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = fallback
	}
	return strings.TrimRight(trimmed, "/")
}

// Fetch implements advice.EnvironmentGateway. Air quality is best effort.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) (advice.EnvironmentSnapshot, error) {
	var (
		forecast forecastResponse
		air      airQualityResponse
		airErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.get(gctx, c.forecastURL, lat, lon, forecastFields, &forecast)
	})
	g.Go(func() error {
		airErr = c.get(gctx, c.airQualityURL, lat, lon, airQualityFields, &air)
		return nil
	})
	if err := g.Wait(); err != nil {
		return advice.EnvironmentSnapshot{}, apperrors.Wrap(CodeUnavailable, "weather data unavailable", err)
	}

	snapshot := advice.EnvironmentSnapshot{
		Current: advice.WeatherConditions{
			TemperatureC:  forecast.Current.Temperature,
			HumidityPct:   forecast.Current.Humidity,
			PressureHPa:   forecast.Current.Pressure,
			UVIndex:       forecast.Current.UVIndex,
			ConditionCode: forecast.Current.WeatherCode,
		},
		FetchedAt: c.now().UTC(),
	}
	switch {
	case airErr != nil:
		c.logger.Warn("air quality fetch failed", "error", airErr)
	case air.Current.AQI == nil || air.Current.PM25 == nil:
		c.logger.Debug("air quality response incomplete")
	default:
		snapshot.AirQuality = &advice.AirQuality{
			AQI:  *air.Current.AQI,
			PM25: *air.Current.PM25,
			PM10: air.Current.PM10,
		}
	}
	return snapshot, nil
}

func (c *Client) get(ctx context.Context, base string, lat, lon float64, fields string, out any) error {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	query.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	query.Set("current", fields)
	query.Set("timezone", "UTC")
	endpoint := base + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build open-meteo request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("open-meteo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("open-meteo request error: status=%d body=%s", resp.StatusCode, string(payload))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode open-meteo response: %w", err)
	}
	return nil
}

type forecastResponse struct {
	Current struct {
		Time        string  `json:"time"`
		Temperature float64 `json:"temperature_2m"`
		Humidity    float64 `json:"relative_humidity_2m"`
		Pressure    float64 `json:"surface_pressure"`
		UVIndex     float64 `json:"uv_index"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
}

type airQualityResponse struct {
	Current struct {
		Time string   `json:"time"`
		AQI  *float64 `json:"us_aqi"`
		PM25 *float64 `json:"pm2_5"`
		PM10 *float64 `json:"pm10"`
	} `json:"current"`
}

var _ advice.EnvironmentGateway = (*Client)(nil)
