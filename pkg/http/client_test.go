package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "echo " + in["prompt"]})
	}))
	defer srv.Close()

	c := NewClient(WithUserAgent("test-agent"))
	var out struct {
		Text string `json:"text"`
	}
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:  MethodPost,
		URL:     srv.URL,
		Headers: map[string]string{"X-Api-Key": "k"},
		Body:    map[string]string{"prompt": "hi"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "echo hi", out.Text)
}

func TestSendAndParseStatusError(t *testing.T) {
	code := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", code)
	}))
	defer srv.Close()

	c := NewClient()
	err := c.SendAndParse(context.Background(), &RequestOptions{Method: MethodPost, URL: srv.URL}, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Contains(t, se.Body, "slow down")
	assert.True(t, se.Retryable())

	code = http.StatusBadRequest
	err = c.SendAndParse(context.Background(), &RequestOptions{Method: MethodPost, URL: srv.URL}, nil)
	require.True(t, errors.As(err, &se))
	assert.False(t, se.Retryable())
}

func TestSendAndParseBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"` + strings.Repeat("x", 100) + `"}`))
	}))
	defer srv.Close()

	var out map[string]string
	err := NewClient(WithMaxBody(32)).SendAndParse(context.Background(), &RequestOptions{Method: MethodPost, URL: srv.URL}, &out)
	assert.Error(t, err)
}
