package tools

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// floatParam reads a numeric parameter. Validated JSON arguments arrive as
// float64, but handlers invoked directly from code may pass native ints.
func floatParam(params map[string]interface{}, name string) (float64, bool) {
	switch v := params[name].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// fetchJSON performs a GET and decodes the JSON response into out
func fetchJSON(client *http.Client, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
