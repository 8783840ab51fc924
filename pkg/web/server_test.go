package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	gomodbus "github.com/goburrow/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"plcgateway/cmd/gateway/config"
	"plcgateway/cmd/gateway/options"
	"plcgateway/pkg/apis/response"
	"plcgateway/pkg/gateway"
	"plcgateway/pkg/plc"
	"plcgateway/pkg/protocol/modbus"
)

// missingPort behaves like a serial device that is not plugged in.
type missingPort struct {
	gomodbus.ClientHandler
	address string
}

func (p *missingPort) Connect() error {
	return fmt.Errorf("open %s: no such file or directory", p.address)
}

func (p *missingPort) Close() error {
	return nil
}

func newTestServer(t *testing.T, staticDir string) *Server {
	gin.SetMode(gin.TestMode)
	client := modbus.NewClient(options.NewDefaultOptions().ClientConfig(),
		modbus.WithHandlerFunc(func(config modbus.ClientConfig) modbus.Handler {
			return &missingPort{address: config.Address}
		}))
	c := &config.Config{
		Device:     plc.NewDevice(client),
		GatewayMgr: gateway.NewGatewayManager(),
		StaticDir:  staticDir,
		Dashboard:  "plc_dashboard.html",
	}
	o := options.NewDefaultOptions()
	o.Port = "0"
	server, err := NewServer(gin.New(), o, c)
	require.NoError(t, err)
	return server
}

func do(server *Server, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestIndexWithoutDashboard(t *testing.T) {
	server := newTestServer(t, t.TempDir())
	w := do(server, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Message   string            `json:"message"`
		Endpoints map[string]string `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "PLC API Server Running", body.Message)
	assert.Equal(t, "/api/status", body.Endpoints["status"])
	assert.Equal(t, "/health", body.Endpoints["health"])
}

func TestIndexServesDashboard(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plc_dashboard.html"), []byte("<html>dashboard</html>"), 0o644))
	server := newTestServer(t, dir)

	w := do(server, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dashboard")
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))
	server := newTestServer(t, dir)

	w := do(server, http.MethodGet, "/app.js")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "console.log(1)", w.Body.String())

	w = do(server, http.MethodGet, "/../../etc/passwd")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStaticHidesConfigFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"config.yaml", "gateway.YML", ".env", "server.key"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("mqtt-password: secret"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.json"), []byte("{}"), 0o644))
	server := newTestServer(t, dir)

	for _, target := range []string{"/config.yaml", "/gateway.YML", "/.env", "/server.key"} {
		w := do(server, http.MethodGet, target)
		assert.Equal(t, http.StatusNotFound, w.Code, target)
		assert.NotContains(t, w.Body.String(), "secret", target)
	}
	w := do(server, http.MethodGet, "/data.json")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNotFound(t *testing.T) {
	server := newTestServer(t, t.TempDir())
	for _, target := range []string{"/missing.html", "/api/unknown"} {
		w := do(server, http.MethodGet, target)
		require.Equal(t, http.StatusNotFound, w.Code, target)

		var failure response.Failure
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failure))
		assert.False(t, failure.Success)
		assert.Equal(t, response.ErrCodeEndpointNotFound, failure.Code)
		assert.Equal(t, "Endpoint not found", failure.Error)
		assert.False(t, failure.Connected)
	}
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, "")
	w := do(server, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, false, body["plc_connected"])
	assert.Equal(t, plc.APIVersion, body["api_version"])
}

func TestServe(t *testing.T) {
	server := newTestServer(t, "")
	exit, err := server.Serve()
	require.NoError(t, err)
	defer exit(context.Background())

	resp, err := http.Get(fmt.Sprintf("http://%s/health", server.Addr().String()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServePortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	server := newTestServer(t, "")
	server.Port = fmt.Sprintf("%d", ln.Addr().(*net.TCPAddr).Port)
	_, err = server.Serve()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in use")
}
