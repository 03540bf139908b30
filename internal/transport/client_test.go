package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligrlabs/crmsync/pkg/errors"
)

type countingRun struct {
	requests int
}

func (c *countingRun) CountRequest() { c.requests++ }

func TestNewRequiresToken(t *testing.T) {
	_, err := New("https://api.example.com", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAPITokenRequired)
}

func TestTokenPassedAsQueryParameter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("api_token"))
		assert.Equal(t, "5", r.URL.Query().Get("start"))
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	c, err := New(server.URL, "secret", WithDelay(0))
	require.NoError(t, err)

	var out map[string]bool
	query := url.Values{"start": {"5"}}
	require.NoError(t, c.Get(context.Background(), "persons", query, &out))
	assert.True(t, out["ok"])
}

func TestPacingSleepsBetweenRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	c, err := New(server.URL, "secret", WithDelay(120*time.Millisecond))
	require.NoError(t, err)

	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }

	var out map[string]any
	ctx := context.Background()
	require.NoError(t, c.Get(ctx, "persons", nil, &out))
	require.NoError(t, c.Get(ctx, "persons", nil, &out))

	require.Len(t, slept, 1, "the first request is never delayed")
	assert.Greater(t, slept[0], time.Duration(0))
	assert.LessOrEqual(t, slept[0], 120*time.Millisecond)
}

func TestCounterSeesEveryRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	run := &countingRun{}
	c, err := New(server.URL, "secret", WithDelay(0), WithCounter(run))
	require.NoError(t, err)

	var out map[string]any
	ctx := context.Background()
	require.NoError(t, c.Get(ctx, "persons", nil, &out))
	require.NoError(t, c.Post(ctx, "persons", map[string]string{"name": "x"}, &out))
	assert.Equal(t, 2, run.requests)
}

func TestNonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "404 page not found")
	}))
	defer server.Close()

	c, err := New(server.URL, "secret", WithDelay(0))
	require.NoError(t, err)

	var out map[string]any
	err = c.Get(context.Background(), "nope", nil, &out)
	require.Error(t, err)

	var apiErr *errors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "404 page not found")
}

func TestErrorEnvelopeDecodedOnBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// The service wraps errors in its normal envelope even on 4xx.
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"success":false,"error":"invalid token"}`)
	}))
	defer server.Close()

	c, err := New(server.URL, "secret", WithDelay(0))
	require.NoError(t, err)

	var out struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, c.Get(context.Background(), "persons", nil, &out))
	assert.False(t, out.Success)
	assert.Equal(t, "invalid token", out.Error)
}
