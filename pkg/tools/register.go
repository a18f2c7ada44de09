package tools

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/phoenixlabs/phoenix/pkg/retrieval"
	"github.com/phoenixlabs/phoenix/pkg/toolexec"
	"github.com/phoenixlabs/phoenix/pkg/youtube"
)

// Options configures builtin tool registration
type Options struct {
	// ExchangeAPIKey authenticates against the currency conversion API
	ExchangeAPIKey string

	// TopK is how many chunks context queries return
	TopK int

	Cache       *retrieval.Cache
	Pipeline    *retrieval.Pipeline
	Transcripts *youtube.Client

	// HTTPClient and the base URLs are overridable for tests
	HTTPClient      *http.Client
	WeatherBaseURL  string
	ExchangeBaseURL string
	SearchBaseURL   string
}

func (o *Options) applyDefaults() {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if o.WeatherBaseURL == "" {
		o.WeatherBaseURL = "https://api.open-meteo.com/v1/forecast"
	}
	if o.ExchangeBaseURL == "" {
		o.ExchangeBaseURL = "https://v6.exchangerate-api.com/v6"
	}
	if o.SearchBaseURL == "" {
		o.SearchBaseURL = "https://api.duckduckgo.com/"
	}
	if o.TopK <= 0 {
		o.TopK = 5
	}
}

// RegisterBuiltinTools registers the builtin capability set on an executor
func RegisterBuiltinTools(executor *toolexec.Executor, opts Options) error {
	if executor == nil {
		return errors.New("tool executor is required")
	}
	opts.applyDefaults()

	defs := []toolexec.ToolDefinition{
		calculatorTool(),
		weatherTool(opts),
		currencyTool(opts),
		searchTool(opts),
	}
	if opts.Cache != nil {
		defs = append(defs, documentQueryTool(opts))
		if opts.Pipeline != nil && opts.Transcripts != nil {
			defs = append(defs, videoQueryTool(opts))
		}
	}

	for _, def := range defs {
		if err := executor.Register(def); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}
	return nil
}
