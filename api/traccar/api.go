package traccar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/txsvc/stdlib/v2"

	"github.com/safetrack-gps/safetrack/internal"
	"github.com/safetrack-gps/safetrack/internal/safety"
	"github.com/safetrack-gps/safetrack/internal/settings"
)

const (
	TraccarHttpEndpoint = "TRACCAR_HTTP_ENDPOINT"

	TraccarUser        = "TRACCAR_USER"
	TraccarPassword    = "TRACCAR_PASSWORD"
	TraccarAccessToken = "TRACCAR_ACCESS_TOKEN"

	TraccarApiAgent = "safetrack/traccar"

	ForceTraceENV = "FORCE_TRACE"

	// positions arrive with speed in knots
	knotsToKmh = 1.852

	commandEngineStop   = "engineStop"
	commandEngineResume = "engineResume"
)

type (
	Client struct {
		rc internal.RestClient
	}
)

// NewClient creates a Traccar API client from the environment. The client
// implements both safety.PositionProvider and safety.CommandDispatcher.
func NewClient(ctx context.Context) (*Client, error) {

	httpClient := internal.NewLoggingTransport(http.DefaultTransport)
	ds := &settings.DialSettings{
		Endpoint:    stdlib.GetString(TraccarHttpEndpoint, ""),
		UserAgent:   TraccarApiAgent,
		Credentials: credentials(),
	}

	if ds.Endpoint == "" {
		return nil, fmt.Errorf("missing TRACCAR_HTTP_ENDPOINT")
	}

	return &Client{
		rc: internal.RestClient{
			HttpClient: httpClient,
			Settings:   ds,
			Trace:      stdlib.GetString(ForceTraceENV, ""),
		},
	}, nil
}

func credentials() *settings.Credentials {
	c := &settings.Credentials{
		Token: stdlib.GetString(TraccarAccessToken, ""),
	}
	if c.Token == "" {
		c.UserID = stdlib.GetString(TraccarUser, "")
		c.Token = stdlib.GetString(TraccarPassword, "")
	}
	return c
}

func (c *Client) GetDevice(uniqueID string) (int, Device) {
	var resp Devices

	status, _ := c.rc.GET(fmt.Sprintf("/api/devices?uniqueId=%s", uniqueID), &resp)
	if status != http.StatusOK || len(resp) == 0 {
		return status, Device{}
	}
	return status, resp[0]
}

func (c *Client) GetPosition(positionID int) (int, Position) {
	var resp Positions

	status, _ := c.rc.GET(fmt.Sprintf("/api/positions?id=%d", positionID), &resp)
	if status != http.StatusOK || len(resp) == 0 {
		return status, Position{}
	}
	return status, resp[0]
}

// FetchLastPosition resolves the device by its unique id and returns its
// last-known position, speed converted to km/h.
func (c *Client) FetchLastPosition(ctx context.Context, deviceKey string) (*safety.Position, error) {
	status, device := c.GetDevice(deviceKey)
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("device %s: %w", deviceKey, safety.ErrNotFound)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("device lookup status %d: %w", status, safety.ErrUpstreamUnavailable)
	}
	if device.UniqueID == "" || device.PositionID == 0 {
		return nil, fmt.Errorf("device %s has no position: %w", deviceKey, safety.ErrNotFound)
	}

	status, pos := c.GetPosition(device.PositionID)
	if status != http.StatusOK {
		return nil, fmt.Errorf("position lookup status %d: %w", status, safety.ErrUpstreamUnavailable)
	}

	ts, err := time.Parse(time.RFC3339, pos.FixTime)
	if err != nil {
		ts = time.Now().UTC()
	}

	speedKmh := pos.Speed * knotsToKmh
	return &safety.Position{
		Lat:       pos.Latitude,
		Lon:       pos.Longitude,
		SpeedKmh:  &speedKmh,
		Timestamp: ts,
	}, nil
}

// SendCommand asks the telemetry server to deliver a cutoff or resume
// command to the device and returns the server's command id.
func (c *Client) SendCommand(ctx context.Context, deviceKey string, kind safety.CommandKind) (string, error) {
	var commandType string
	switch kind {
	case safety.CommandCutoff:
		commandType = commandEngineStop
	case safety.CommandResume:
		commandType = commandEngineResume
	default:
		return "", fmt.Errorf("command kind %q: %w", kind, safety.ErrInvalidConfig)
	}

	status, device := c.GetDevice(deviceKey)
	if status == http.StatusNotFound || (status == http.StatusOK && device.UniqueID == "") {
		return "", fmt.Errorf("device %s: %w", deviceKey, safety.ErrNotFound)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("device lookup status %d: %w", status, safety.ErrUpstreamUnavailable)
	}

	req := Command{
		DeviceID: device.ID,
		Type:     commandType,
	}

	var resp Command
	status, err := c.rc.POST("/api/commands/send", &req, &resp)
	if err != nil || status > http.StatusAccepted {
		return "", fmt.Errorf("command %s status %d: %w", commandType, status, safety.ErrUpstreamUnavailable)
	}

	return fmt.Sprintf("%d", resp.ID), nil
}
