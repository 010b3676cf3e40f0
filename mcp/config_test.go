package mcp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfig_NewTransport(t *testing.T) {
	t.Parallel()

	def := DefaultServerConfig()
	assert.Equal(t, TransportStdio, def.TransportKind())
	tr, err := def.NewTransport()
	require.NoError(t, err)
	ct, ok := tr.(*gomcp.CommandTransport)
	require.True(t, ok)
	assert.Equal(t, []string{"uv", "run", "research_server.py"}, ct.Command.Args)
	assert.Nil(t, ct.Command.Env)

	withEnv := ServerConfig{Command: "python", Args: []string{"server.py"}, Env: map[string]string{"FOO": "bar"}}
	tr, err = withEnv.NewTransport()
	require.NoError(t, err)
	assert.Contains(t, tr.(*gomcp.CommandTransport).Command.Env, "FOO=bar")

	tr, err = ServerConfig{Transport: TransportStreamable, URL: "http://localhost:8001/mcp"}.NewTransport()
	require.NoError(t, err)
	st, ok := tr.(*gomcp.StreamableClientTransport)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8001/mcp", st.Endpoint)
	assert.Nil(t, st.HTTPClient)

	tr, err = ServerConfig{Transport: TransportSSE, URL: "http://localhost:8001/sse", Headers: map[string]string{"X-Key": "v"}}.NewTransport()
	require.NoError(t, err)
	sse, ok := tr.(*gomcp.SSEClientTransport)
	require.True(t, ok)
	assert.NotNil(t, sse.HTTPClient)

	tests := []struct {
		cfg ServerConfig
		err string
	}{
		{cfg: ServerConfig{Transport: TransportStdio}, err: "stdio transport requires a command"},
		{cfg: ServerConfig{Transport: TransportStreamable}, err: "streamable-http transport requires a URL"},
		{cfg: ServerConfig{Transport: TransportSSE}, err: "sse transport requires a URL"},
		{cfg: ServerConfig{Transport: "ws"}, err: `unsupported transport: "ws"`},
	}
	for _, tc := range tests {
		_, err := tc.cfg.NewTransport()
		assert.EqualError(t, err, tc.err)
	}
}

func TestHeaderTransport(t *testing.T) {
	t.Parallel()

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hc := ServerConfig{Headers: map[string]string{"Authorization": "Bearer token"}}.httpClient()
	require.NotNil(t, hc)
	resp, err := hc.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "Bearer token", got)
}
