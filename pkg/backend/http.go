package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/opensky-to/agent-sub001/pkg/request"
)

// apiResult is the envelope every backend endpoint responds with.
type apiResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// HTTPClient implements Client over the OpenSky REST API.
type HTTPClient struct {
	base   string
	token  string
	client *request.Client
}

// NewHTTPClient creates a backend client rooted at baseURL.
func NewHTTPClient(baseURL, token string, rc *request.Client) *HTTPClient {
	return &HTTPClient{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: rc,
	}
}

func (c *HTTPClient) headers() map[string]string {
	return map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + c.token,
	}
}

// call posts the payload and unwraps the result envelope.
func (c *HTTPClient) call(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	var body []byte
	var err error
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
	}

	raw, err := c.client.Post(ctx, c.base+path, body, c.headers())
	if err != nil {
		return nil, err
	}

	var res apiResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("server error: %s", res.Message)
	}
	return res.Data, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	raw, err := c.client.Get(ctx, c.base+"/api/ping", c.headers())
	if err != nil {
		return err
	}

	var res apiResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("server error: %s", res.Message)
	}
	return nil
}

func (c *HTTPClient) AbortFlight(ctx context.Context, flightID uuid.UUID) error {
	_, err := c.call(ctx, "/api/flights/"+flightID.String()+"/abort", nil)
	return err
}

func (c *HTTPClient) PauseFlight(ctx context.Context, flightID uuid.UUID) error {
	_, err := c.call(ctx, "/api/flights/"+flightID.String()+"/pause", nil)
	return err
}

func (c *HTTPClient) CompleteFlight(ctx context.Context, final FinalReport) error {
	_, err := c.call(ctx, "/api/flights/"+final.FinalPositionReport.FlightID.String()+"/complete", final)
	return err
}

func (c *HTTPClient) PositionReport(ctx context.Context, report PositionReport) error {
	_, err := c.call(ctx, "/api/flights/"+report.FlightID.String()+"/position", report)
	return err
}

func (c *HTTPClient) UploadFlightAutoSave(ctx context.Context, flightID uuid.UUID, flightLog string) error {
	payload := map[string]string{"flight_log": flightLog}
	_, err := c.call(ctx, "/api/flights/"+flightID.String()+"/autosave", payload)
	return err
}

func (c *HTTPClient) DownloadFlightAutoSave(ctx context.Context, flightID uuid.UUID) (*AutoSave, error) {
	raw, err := c.client.Get(ctx, c.base+"/api/flights/"+flightID.String()+"/autosave", c.headers())
	if err != nil {
		return nil, err
	}

	var res apiResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("server error: %s", res.Message)
	}
	if len(res.Data) == 0 || string(res.Data) == "null" {
		return nil, nil
	}

	var save AutoSave
	if err := json.Unmarshal(res.Data, &save); err != nil {
		return nil, fmt.Errorf("failed to decode auto-save: %w", err)
	}
	if save.FlightLog == "" {
		return nil, nil
	}
	return &save, nil
}
