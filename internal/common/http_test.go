package common

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	cases := map[string]struct {
		xff, realIP, remote string
		want                string
	}{
		"first forwarded hop":       {xff: "203.0.113.9, 10.0.0.1", remote: "10.0.0.2:443", want: "203.0.113.9"},
		"skips malformed hop":       {xff: "unknown, 198.51.100.4", remote: "10.0.0.2:443", want: "198.51.100.4"},
		"real ip header":            {realIP: " 198.51.100.7 ", remote: "10.0.0.2:443", want: "198.51.100.7"},
		"ignores malformed real ip": {realIP: "bogus", remote: "10.0.0.2:443", want: "10.0.0.2"},
		"ipv4 mapped address":       {xff: "::ffff:192.0.2.1", want: "192.0.2.1"},
		"remote without port":       {remote: "192.0.2.33", want: "192.0.2.33"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			assert.Equal(t, tc.want, ClientIP(req))
		})
	}
	assert.Empty(t, ClientIP(nil))
}

func TestDataWrapsPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	Data(rec, http.StatusAccepted, map[string]any{"id": "42"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "42", body.Data["id"])
}
