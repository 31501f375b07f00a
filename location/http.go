package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPSampler reads a fix from a JSON endpoint returning
// {"lat": .., "lng": .., "accuracy": ..}.
type HTTPSampler struct {
	URL    string
	Client *http.Client
}

func (s HTTPSampler) Sample(ctx context.Context) (Fix, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return Fix{}, fmt.Errorf("location: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Fix{}, fmt.Errorf("location: sample: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Fix{}, fmt.Errorf("location: sample: status %d", resp.StatusCode)
	}
	var fix Fix
	if err := json.NewDecoder(resp.Body).Decode(&fix); err != nil {
		return Fix{}, fmt.Errorf("location: decode fix: %w", err)
	}
	return fix, nil
}
