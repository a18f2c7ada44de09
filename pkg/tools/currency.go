package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/phoenixlabs/phoenix/pkg/toolexec"
)

func currencyTool(opts Options) toolexec.ToolDefinition {
	return toolexec.ToolDefinition{
		Name:        "get_conversion_rate",
		Description: "Fetch the latest conversion rate between a base currency and a target currency.",
		Parameters: []toolexec.ToolParameter{
			{Name: "base_currency", Type: "string", Description: "ISO 4217 code of the base currency, e.g. USD", Required: true},
			{Name: "target_currency", Type: "string", Description: "ISO 4217 code of the target currency, e.g. EUR", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			base, _ := params["base_currency"].(string)
			target, _ := params["target_currency"].(string)
			base = strings.ToUpper(strings.TrimSpace(base))
			target = strings.ToUpper(strings.TrimSpace(target))
			if base == "" || target == "" {
				return nil, fmt.Errorf("base_currency and target_currency are required")
			}

			if opts.ExchangeAPIKey == "" {
				return nil, fmt.Errorf("currency conversion is not configured: missing exchange API key")
			}

			endpoint := fmt.Sprintf("%s/%s/pair/%s/%s",
				opts.ExchangeBaseURL, url.PathEscape(opts.ExchangeAPIKey), url.PathEscape(base), url.PathEscape(target))

			req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create request: %w", err)
			}

			var data struct {
				Result         string  `json:"result"`
				ErrorType      string  `json:"error-type"`
				ConversionRate float64 `json:"conversion_rate"`
			}
			if err := fetchJSON(opts.HTTPClient, req, &data); err != nil {
				return nil, fmt.Errorf("conversion rate lookup failed: %w", err)
			}
			if data.Result != "success" {
				return nil, fmt.Errorf("conversion rate lookup failed: %s", data.ErrorType)
			}

			return map[string]interface{}{
				"base_currency":   base,
				"target_currency": target,
				"conversion_rate": data.ConversionRate,
			}, nil
		},
	}
}
