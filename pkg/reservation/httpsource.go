package reservation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPSource fetches reservation events over HTTP, bearer-token
// authenticated, from a single configured reservation backend (spec §6
// "Reservation source"; the backend's own API surface is out of scope, so
// this adapter only needs to satisfy the Source interface with a fixed
// attribute mapping). Grounded on pkg/bookowl.Client's request/decode shape.
type HTTPSource struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewHTTPSource creates an HTTPSource with a 10-second request timeout.
func NewHTTPSource(baseURL, token string) *HTTPSource {
	return &HTTPSource{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		token:      token,
	}
}

type rawEventWire struct {
	Index    int             `json:"index"`
	SlotName *string         `json:"slot_name"`
	SlotCode *string         `json:"slot_code"`
	LastFour *string         `json:"last_four"`
	StartUTC time.Time       `json:"start_utc"`
	EndUTC   time.Time       `json:"end_utc"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// FetchEvents implements Source.
func (s *HTTPSource) FetchEvents(ctx context.Context, integrationID string) ([]RawEvent, error) {
	url := fmt.Sprintf("%s/integrations/%s/events", s.baseURL, integrationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling reservation source: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reservation source returned HTTP %d", resp.StatusCode)
	}

	var wire []rawEventWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding reservation source response: %w", err)
	}

	out := make([]RawEvent, 0, len(wire))
	for _, e := range wire {
		out = append(out, RawEvent{
			Index:    e.Index,
			SlotName: e.SlotName,
			SlotCode: e.SlotCode,
			LastFour: e.LastFour,
			StartUTC: e.StartUTC,
			EndUTC:   e.EndUTC,
			Raw:      e.Raw,
		})
	}
	return out, nil
}
