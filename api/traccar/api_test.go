package traccar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/safetrack-gps/safetrack/internal/safety"
)

const (
	testUniqueID = "868120300001234"
)

func newTestServer(t *testing.T) (*httptest.Server, *Command) {
	t.Helper()

	var lastCommand Command

	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("uniqueId") != testUniqueID {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(Devices{})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Devices{
			{
				ID:         42,
				Name:       "unit-42",
				UniqueID:   testUniqueID,
				Status:     "online",
				PositionID: 7,
			},
		})
	})
	mux.HandleFunc("/api/positions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Positions{
			{
				ID:        7,
				DeviceID:  42,
				Latitude:  19.4326,
				Longitude: -99.1332,
				Speed:     10, // knots
				Valid:     true,
				FixTime:   "2023-05-01T12:00:00Z",
			},
		})
	})
	mux.HandleFunc("/api/commands/send", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&lastCommand))

		lastCommand.ID = 77
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(lastCommand)
	})

	svc := httptest.NewServer(mux)
	t.Cleanup(svc.Close)

	return svc, &lastCommand
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()

	t.Setenv(TraccarHttpEndpoint, endpoint)
	t.Setenv(TraccarAccessToken, "test-token")

	client, err := NewClient(context.TODO())
	assert.NoError(t, err)

	return client
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	t.Setenv(TraccarHttpEndpoint, "")

	_, err := NewClient(context.TODO())
	assert.Error(t, err)
}

func TestFetchLastPosition(t *testing.T) {
	svc, _ := newTestServer(t)
	client := newTestClient(t, svc.URL)

	pos, err := client.FetchLastPosition(context.TODO(), testUniqueID)
	assert.NoError(t, err)
	assert.Equal(t, 19.4326, pos.Lat)
	assert.Equal(t, -99.1332, pos.Lon)
	assert.NotNil(t, pos.SpeedKmh)
	assert.InDelta(t, 18.52, *pos.SpeedKmh, 0.001) // 10 knots
	assert.Equal(t, "2023-05-01T12:00:00Z", pos.Timestamp.Format("2006-01-02T15:04:05Z"))
}

func TestFetchLastPositionUnknownDevice(t *testing.T) {
	svc, _ := newTestServer(t)
	client := newTestClient(t, svc.URL)

	_, err := client.FetchLastPosition(context.TODO(), "does-not-exist")
	assert.ErrorIs(t, err, safety.ErrNotFound)
}

func TestFetchLastPositionUpstreamError(t *testing.T) {
	svc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(svc.Close)
	client := newTestClient(t, svc.URL)

	_, err := client.FetchLastPosition(context.TODO(), testUniqueID)
	assert.ErrorIs(t, err, safety.ErrUpstreamUnavailable)
}

func TestSendCommand(t *testing.T) {
	svc, lastCommand := newTestServer(t)
	client := newTestClient(t, svc.URL)

	id, err := client.SendCommand(context.TODO(), testUniqueID, safety.CommandCutoff)
	assert.NoError(t, err)
	assert.Equal(t, "77", id)
	assert.Equal(t, 42, lastCommand.DeviceID)
	assert.Equal(t, "engineStop", lastCommand.Type)

	id, err = client.SendCommand(context.TODO(), testUniqueID, safety.CommandResume)
	assert.NoError(t, err)
	assert.Equal(t, "77", id)
	assert.Equal(t, "engineResume", lastCommand.Type)
}

func TestSendCommandInvalidKind(t *testing.T) {
	svc, _ := newTestServer(t)
	client := newTestClient(t, svc.URL)

	_, err := client.SendCommand(context.TODO(), testUniqueID, safety.CommandKind("reboot"))
	assert.ErrorIs(t, err, safety.ErrInvalidConfig)
}

func TestSendCommandUnknownDevice(t *testing.T) {
	svc, _ := newTestServer(t)
	client := newTestClient(t, svc.URL)

	_, err := client.SendCommand(context.TODO(), "does-not-exist", safety.CommandCutoff)
	assert.ErrorIs(t, err, safety.ErrNotFound)
}
