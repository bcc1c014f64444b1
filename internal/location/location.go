// Package location aggregates context about where a user is: geocoding,
// current weather, forecast, and nearby events. Weather data comes from
// OpenWeatherMap, events from the Ticketmaster Discovery API.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/futureself/backend/internal/config"
)

// ErrNotFound is returned when a place query resolves to nothing.
var ErrNotFound = errors.New("location not found")

// Place is a geocoded location.
type Place struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Weather is the current conditions at a place. Temperatures are in
// Celsius, wind speed in m/s.
type Weather struct {
	Condition   string  `json:"condition"`
	Description string  `json:"description"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
}

// ForecastEntry is one 3-hour forecast slot.
type ForecastEntry struct {
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
	Description string  `json:"description"`
}

// Event is one nearby upcoming event.
type Event struct {
	Name  string `json:"name"`
	Venue string `json:"venue"`
	Date  string `json:"date"`
	Time  string `json:"time,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Context is the aggregated location context for a query.
type Context struct {
	Place    Place           `json:"place"`
	Weather  *Weather        `json:"weather,omitempty"`
	Forecast []ForecastEntry `json:"forecast,omitempty"`
	Events   []Event         `json:"events,omitempty"`
	Advice   []string        `json:"advice,omitempty"`
	Summary  string          `json:"summary"`
}

// Service fetches and aggregates location context. Events and forecast
// are best-effort; only geocoding failures fail the whole lookup.
type Service struct {
	cfg        config.LocationConfig
	httpClient *http.Client
	log        *slog.Logger
}

func NewService(cfg config.LocationConfig, log *slog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// Context builds the aggregated context for a free-text place query.
func (s *Service) Context(ctx context.Context, query string) (*Context, error) {
	place, err := s.Geocode(ctx, query)
	if err != nil {
		return nil, err
	}

	result := &Context{Place: *place}

	weather, err := s.CurrentWeather(ctx, place.Latitude, place.Longitude)
	if err != nil {
		s.log.WarnContext(ctx, "weather lookup failed", "query", query, "error", err)
	} else {
		result.Weather = weather
		result.Advice = WeatherAdvice(weather)
	}

	forecast, err := s.Forecast(ctx, place.Latitude, place.Longitude)
	if err != nil {
		s.log.WarnContext(ctx, "forecast lookup failed", "query", query, "error", err)
	} else {
		result.Forecast = forecast
	}

	if s.cfg.EventsAPIKey != "" {
		events, err := s.Events(ctx, place.Latitude, place.Longitude)
		if err != nil {
			s.log.WarnContext(ctx, "events lookup failed", "query", query, "error", err)
		} else {
			result.Events = events
		}
	}

	result.Summary = summarize(result)
	return result, nil
}

type geocodeResponse []struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Geocode resolves a free-text place name to coordinates.
func (s *Service) Geocode(ctx context.Context, query string) (*Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty location query")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", "1")
	params.Set("appid", s.cfg.WeatherAPIKey)

	var results geocodeResponse
	if err := s.getJSON(ctx, s.cfg.GeoBaseURL+"/direct", params, &results); err != nil {
		return nil, fmt.Errorf("geocoding %q: %w", query, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, query)
	}

	return &Place{
		Name:      results[0].Name,
		Country:   results[0].Country,
		Latitude:  results[0].Lat,
		Longitude: results[0].Lon,
	}, nil
}

type weatherResponse struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// CurrentWeather fetches current conditions in metric units.
func (s *Service) CurrentWeather(ctx context.Context, lat, lon float64) (*Weather, error) {
	var resp weatherResponse
	if err := s.getJSON(ctx, s.cfg.WeatherBaseURL+"/weather", s.coordParams(lat, lon), &resp); err != nil {
		return nil, fmt.Errorf("fetching weather: %w", err)
	}

	weather := &Weather{
		Temperature: resp.Main.Temp,
		FeelsLike:   resp.Main.FeelsLike,
		Humidity:    resp.Main.Humidity,
		WindSpeed:   resp.Wind.Speed,
	}
	if len(resp.Weather) > 0 {
		weather.Condition = resp.Weather[0].Main
		weather.Description = resp.Weather[0].Description
	}
	return weather, nil
}

type forecastResponse struct {
	List []struct {
		DtTxt string `json:"dt_txt"`
		Main  struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"list"`
}

// maxForecastEntries keeps the forecast to roughly the next day of
// 3-hour slots.
const maxForecastEntries = 8

// Forecast fetches the short-term forecast in metric units.
func (s *Service) Forecast(ctx context.Context, lat, lon float64) ([]ForecastEntry, error) {
	var resp forecastResponse
	if err := s.getJSON(ctx, s.cfg.WeatherBaseURL+"/forecast", s.coordParams(lat, lon), &resp); err != nil {
		return nil, fmt.Errorf("fetching forecast: %w", err)
	}

	entries := make([]ForecastEntry, 0, maxForecastEntries)
	for _, item := range resp.List {
		if len(entries) == maxForecastEntries {
			break
		}
		entry := ForecastEntry{
			Time:        item.DtTxt,
			Temperature: item.Main.Temp,
		}
		if len(item.Weather) > 0 {
			entry.Condition = item.Weather[0].Main
			entry.Description = item.Weather[0].Description
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type eventsResponse struct {
	Embedded struct {
		Events []struct {
			Name  string `json:"name"`
			URL   string `json:"url"`
			Dates struct {
				Start struct {
					LocalDate string `json:"localDate"`
					LocalTime string `json:"localTime"`
				} `json:"start"`
			} `json:"dates"`
			Embedded struct {
				Venues []struct {
					Name string `json:"name"`
				} `json:"venues"`
			} `json:"_embedded"`
		} `json:"events"`
	} `json:"_embedded"`
}

// Events fetches upcoming events near the coordinates.
func (s *Service) Events(ctx context.Context, lat, lon float64) ([]Event, error) {
	params := url.Values{}
	params.Set("apikey", s.cfg.EventsAPIKey)
	params.Set("latlong", fmt.Sprintf("%f,%f", lat, lon))
	params.Set("radius", s.cfg.EventRadius)
	params.Set("unit", "km")
	params.Set("size", strconv.Itoa(s.cfg.EventSize))
	params.Set("sort", "date,asc")

	var resp eventsResponse
	if err := s.getJSON(ctx, s.cfg.EventsBaseURL+"/events.json", params, &resp); err != nil {
		return nil, fmt.Errorf("fetching events: %w", err)
	}

	events := make([]Event, 0, len(resp.Embedded.Events))
	for _, e := range resp.Embedded.Events {
		event := Event{
			Name: e.Name,
			URL:  e.URL,
			Date: e.Dates.Start.LocalDate,
			Time: e.Dates.Start.LocalTime,
		}
		if len(e.Embedded.Venues) > 0 {
			event.Venue = e.Embedded.Venues[0].Name
		}
		events = append(events, event)
	}
	return events, nil
}

func (s *Service) coordParams(lat, lon float64) url.Values {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("units", "metric")
	params.Set("appid", s.cfg.WeatherAPIKey)
	return params
}

func (s *Service) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
