package airthings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTokenURL = "https://accounts-api.airthings.com/v1/token"
	DefaultAPIURL   = "https://ext-api.airthings.com/v1"
)

// Client talks to the Airthings consumer API using client-credentials
// auth. It is safe for use from a single goroutine; the actor layer
// serializes access.
type Client struct {
	httpClient *http.Client
	tokenURL   string
	apiURL     string

	clientID     string
	clientSecret string

	accessToken string
	tokenExpiry time.Time
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithURLs(tokenURL, apiURL string) ClientOption {
	return func(c *Client) {
		c.tokenURL = tokenURL
		c.apiURL = apiURL
	}
}

func NewClient(clientID, clientSecret string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		tokenURL:     DefaultTokenURL,
		apiURL:       DefaultAPIURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type devicesResponse struct {
	Devices []deviceJSON `json:"devices"`
}

type deviceJSON struct {
	Id         string `json:"id"`
	DeviceType string `json:"deviceType"`
	Segment    struct {
		Name string `json:"name"`
	} `json:"segment"`
}

type samplesResponse struct {
	Data map[string]json.Number `json:"data"`
}

// sampleOrder fixes the reading order within a device so entity sets are
// stable between polls. Unknown keys are appended alphabetically after.
var sampleOrder = []string{
	"radonShortTermAvg", "temp", "humidity", "pressure", "battery",
	"co2", "voc", "light", "virusRisk", "mold", "rssi", "pm1", "pm25",
}

// UpdateDevices fetches every device of the account and its latest
// samples, keyed by serial number. Any failure is reported as *Error.
func (c *Client) UpdateDevices(ctx context.Context) (map[string]Device, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	var listing devicesResponse
	if err := c.get(ctx, "/devices", &listing); err != nil {
		return nil, err
	}

	devices := make(map[string]Device, len(listing.Devices))
	for _, d := range listing.Devices {
		var samples samplesResponse
		if err := c.get(ctx, fmt.Sprintf("/devices/%s/latest-samples", d.Id), &samples); err != nil {
			return nil, err
		}
		devices[d.Id] = Device{
			SerialNumber: d.Id,
			Name:         d.Segment.Name,
			Type:         d.DeviceType,
			Sensors:      orderedReadings(samples.Data),
		}
	}
	return devices, nil
}

func orderedReadings(data map[string]json.Number) []SensorReading {
	readings := make([]SensorReading, 0, len(data))
	seen := make(map[string]bool, len(data))
	for _, key := range sampleOrder {
		if raw, ok := data[key]; ok {
			if v, err := raw.Float64(); err == nil {
				readings = append(readings, SensorReading{Type: key, Value: v})
			}
			seen[key] = true
		}
	}
	// keys outside the fixed order still surface as readings
	for key, raw := range data {
		if seen[key] {
			continue
		}
		if v, err := raw.Float64(); err == nil {
			readings = append(readings, SensorReading{Type: key, Value: v})
		}
	}
	return readings
}

func (c *Client) ensureToken(ctx context.Context) error {
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("scope", "read:device:current_values")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &Error{Op: "token", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: "token", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &Error{Op: "token", StatusCode: resp.StatusCode}
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return &Error{Op: "token", Err: err}
	}
	c.accessToken = token.AccessToken
	// renew a minute early to avoid racing the expiry
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return &Error{Op: path, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		// token may have been revoked server-side, force a refresh next call
		c.accessToken = ""
	}
	if resp.StatusCode != http.StatusOK {
		return &Error{Op: path, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: path, Err: err}
	}
	return nil
}
