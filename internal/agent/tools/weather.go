package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultWeatherBaseURL is the public wttr.in endpoint.
const DefaultWeatherBaseURL = "https://wttr.in"

const weatherTimeout = 10 * time.Second

// Weather answers get_weather calls via the wttr.in JSON API.
type Weather struct {
	baseURL    string
	httpClient *http.Client
}

// NewWeather constructs the weather tool. An empty baseURL selects wttr.in.
func NewWeather(baseURL string, httpClient *http.Client) *Weather {
	if baseURL == "" {
		baseURL = DefaultWeatherBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: weatherTimeout}
	}
	return &Weather{baseURL: baseURL, httpClient: httpClient}
}

// Name implements Tool.
func (w *Weather) Name() string { return "get_weather" }

type wttrResponse struct {
	CurrentCondition []struct {
		TempC       string `json:"temp_C"`
		Humidity    string `json:"humidity"`
		WeatherDesc []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
	} `json:"current_condition"`
}

// Invoke implements Tool.
func (w *Weather) Invoke(ctx context.Context, params map[string]any) (Output, error) {
	city := stringParam(params, "city")
	if city == "" {
		return Output{Text: "请指定城市名称"}, nil
	}

	reqURL := fmt.Sprintf("%s/%s?format=j1", w.baseURL, url.PathEscape(city))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Output{Text: "天气查询失败"}, nil
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return Output{Text: "天气查询失败"}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	var data wttrResponse
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&data) != nil {
		return Output{Text: "天气查询失败"}, nil
	}
	if len(data.CurrentCondition) == 0 || len(data.CurrentCondition[0].WeatherDesc) == 0 {
		return Output{Text: "天气查询失败"}, nil
	}

	current := data.CurrentCondition[0]
	text := fmt.Sprintf(
		"%s天气：%s，温度%s°C，湿度%s%%",
		city, current.WeatherDesc[0].Value, current.TempC, current.Humidity,
	)
	return Output{Text: text}, nil
}
