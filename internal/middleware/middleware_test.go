package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"ghos/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainSetsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := &http.Client{Transport: Chain(http.DefaultTransport,
		RequestID,
		Logger(logging.NewNop()),
		Headers("ghos-test", "secret"),
	)}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/user", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "ghos-test", got.Get("User-Agent"))
	assert.Equal(t, "Bearer secret", got.Get("Authorization"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
	// the caller's request is never mutated
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestHeadersAnonymous(t *testing.T) {
	var auth string
	rt := Headers("ghos", "")(RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		auth = r.Header.Get("Authorization")
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Empty(t, auth)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(r)
			})
		}
	}
	base := RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		order = append(order, "base")
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})

	_, err := Chain(base, mark("outer"), mark("inner")).RoundTrip(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "base"}, order)
}
