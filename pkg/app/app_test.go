package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quickjack/pkg/app/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	c := config.NewConfig()
	c.Gpio.Driver = "emu"

	a, err := New(c)
	require.NoError(t, err)
	require.NoError(t, a.init())
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func request(t *testing.T, a *App, method, target string) (int, map[string]interface{}) {
	t.Helper()

	resp, err := a.web.Test(httptest.NewRequest(method, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	m := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(body, &m), string(body))
	return resp.StatusCode, m
}

func TestHandleVersion(t *testing.T) {
	a := newTestApp(t)

	code, m := request(t, a, http.MethodGet, "/version")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, VERSION, m["version"])
	assert.Equal(t, MODULE, m["description"])
}

func TestHandleSend(t *testing.T) {
	a := newTestApp(t)

	code, m := request(t, a, http.MethodPost, "/send/0xaa")
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, float64(0xaa), m["value"])

	// the first byte is still pending
	code, m = request(t, a, http.MethodPost, "/send/85")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, float64(0xaa), m["pending"])

	code, _ = request(t, a, http.MethodPost, "/send/zz")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = request(t, a, http.MethodPost, "/send/256")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandleData(t *testing.T) {
	a := newTestApp(t)

	_, err := a.link.Send(0x01)
	require.NoError(t, err)

	code, m := request(t, a, http.MethodGet, "/data")
	require.Equal(t, http.StatusOK, code)

	link, ok := m["link"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, link["txPending"])
	assert.Equal(t, "idle", link["txState"])
	assert.Equal(t, "startbit", link["rxState"])
	assert.NotContains(t, m, "bridge")
}

func TestHandleHealth(t *testing.T) {
	a := newTestApp(t)

	// the encode timer isn't running
	code, m := request(t, a, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, false, m["Healthy"])

	a.link.Encode()
	code, m = request(t, a, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), m["Ticks"])
}

func TestCloseTwice(t *testing.T) {
	a := newTestApp(t)

	require.NoError(t, a.Close())
	assert.NotPanics(t, func() { _ = a.Close() })
}
