package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/phoenixlabs/phoenix/pkg/toolexec"
)

func searchTool(opts Options) toolexec.ToolDefinition {
	return toolexec.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web for up-to-date information and return a short answer with related results.",
		Parameters: []toolexec.ToolParameter{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			query, _ := params["query"].(string)
			query = strings.TrimSpace(query)
			if query == "" {
				return nil, fmt.Errorf("query is required")
			}

			endpoint := fmt.Sprintf("%s?q=%s&format=json&no_html=1&skip_disambig=1",
				opts.SearchBaseURL, url.QueryEscape(query))

			req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create request: %w", err)
			}

			var data struct {
				AbstractText  string `json:"AbstractText"`
				AbstractURL   string `json:"AbstractURL"`
				Answer        string `json:"Answer"`
				RelatedTopics []struct {
					Text     string `json:"Text"`
					FirstURL string `json:"FirstURL"`
				} `json:"RelatedTopics"`
			}
			if err := fetchJSON(opts.HTTPClient, req, &data); err != nil {
				return nil, fmt.Errorf("search failed: %w", err)
			}

			answer := data.Answer
			if answer == "" {
				answer = data.AbstractText
			}

			results := make([]map[string]interface{}, 0, 5)
			for _, topic := range data.RelatedTopics {
				if topic.Text == "" {
					continue
				}
				results = append(results, map[string]interface{}{
					"text": topic.Text,
					"url":  topic.FirstURL,
				})
				if len(results) == 5 {
					break
				}
			}

			if answer == "" && len(results) == 0 {
				// In-band so the model can answer from its own knowledge
				return map[string]interface{}{"message": "no results found"}, nil
			}

			out := map[string]interface{}{"results": results}
			if answer != "" {
				out["answer"] = answer
			}
			if data.AbstractURL != "" {
				out["source"] = data.AbstractURL
			}
			return out, nil
		},
	}
}
