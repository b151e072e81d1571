package gatewayclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, server *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = server.URL
	if cfg.Token == "" {
		cfg.Token = "test-token"
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Millisecond
	}
	client, err := New(cfg)
	require.NoError(t, err)
	return client
}

func TestSendText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send/text", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-token", r.Header.Get("token"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "5521987654321", body["number"])
		assert.Equal(t, "Olá! A matrícula está aberta.", body["text"])
		assert.Equal(t, float64(1200), body["delay"])
		assert.Equal(t, true, body["readchat"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messageid":"3EB0ABC","status":"Pending"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	res, err := client.SendText(context.Background(), SendTextRequest{
		Number:   "5521987654321",
		Text:     "Olá! A matrícula está aberta.",
		Delay:    1200,
		ReadChat: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "3EB0ABC", res.MessageID)
}

func TestSendTextRetriesOnceOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"MSG-2"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	res, err := client.SendText(context.Background(), SendTextRequest{Number: "5521987654321", Text: "oi"})
	require.NoError(t, err)
	assert.Equal(t, "MSG-2", res.MessageID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSendTextGivesUpAfterSingleRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"instance disconnected"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	_, err := client.SendText(context.Background(), SendTextRequest{Number: "5521987654321", Text: "oi"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "instance disconnected", apiErr.Message)
	assert.True(t, apiErr.Temporary())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSendTextDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	_, err := client.SendText(context.Background(), SendTextRequest{Number: "5521987654321", Text: "oi"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSendTextErrorInSuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"number not on whatsapp"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	_, err := client.SendText(context.Background(), SendTextRequest{Number: "5521987654321", Text: "oi"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "number not on whatsapp", apiErr.Message)
}

func TestSendTextValidation(t *testing.T) {
	client, err := New(Config{BaseURL: "http://localhost", Token: "t"})
	require.NoError(t, err)
	_, err = client.SendText(context.Background(), SendTextRequest{Text: "oi"})
	assert.Error(t, err)
	_, err = client.SendText(context.Background(), SendTextRequest{Number: "55"})
	assert.Error(t, err)
}

func TestNewRequiresTokenAndURL(t *testing.T) {
	_, err := New(Config{BaseURL: "http://localhost"})
	assert.Error(t, err)
	_, err = New(Config{Token: "t"})
	assert.Error(t, err)
}

func TestExtractMessageID(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"id first", `{"id":"A","messageid":"B","key":{"id":"C"}}`, "A"},
		{"messageid second", `{"messageid":"B","key":{"id":"C"}}`, "B"},
		{"key id last", `{"key":{"id":"C"}}`, "C"},
		{"numeric id", `{"id":12345}`, "12345"},
		{"empty id falls through", `{"id":"","key":{"id":"C"}}`, "C"},
		{"none", `{"status":"ok"}`, ""},
		{"not json", `ok`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMessageID([]byte(tt.body)))
		})
	}
}
