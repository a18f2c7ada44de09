package tools

import (
	"context"
	"fmt"
	"net/http"

	"github.com/phoenixlabs/phoenix/pkg/toolexec"
)

func weatherTool(opts Options) toolexec.ToolDefinition {
	return toolexec.ToolDefinition{
		Name:        "get_weather",
		Description: "Get the current temperature in celsius for a location given its latitude and longitude.",
		Parameters: []toolexec.ToolParameter{
			{Name: "latitude", Type: "number", Description: "Latitude of the location", Required: true},
			{Name: "longitude", Type: "number", Description: "Longitude of the location", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			latitude, ok := floatParam(params, "latitude")
			if !ok {
				return nil, fmt.Errorf("latitude must be a number")
			}
			longitude, ok := floatParam(params, "longitude")
			if !ok {
				return nil, fmt.Errorf("longitude must be a number")
			}

			endpoint := fmt.Sprintf("%s?latitude=%g&longitude=%g&current=temperature_2m",
				opts.WeatherBaseURL, latitude, longitude)

			req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create request: %w", err)
			}

			var data struct {
				Current struct {
					Temperature float64 `json:"temperature_2m"`
				} `json:"current"`
			}
			if err := fetchJSON(opts.HTTPClient, req, &data); err != nil {
				return nil, fmt.Errorf("weather lookup failed: %w", err)
			}

			return map[string]interface{}{"temperature_celsius": data.Current.Temperature}, nil
		},
	}
}
