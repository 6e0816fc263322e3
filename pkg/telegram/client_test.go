package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallPostsMethodPayload(t *testing.T) {
	var gotPath string
	var gotBody SendMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	}))
	defer server.Close()

	c := NewClient("123:abc", WithBaseURL(server.URL))
	result, err := c.Call(context.Background(), SendMessage{ChatID: 5, Text: "שלום"})
	require.NoError(t, err)

	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, int64(5), gotBody.ChatID)
	assert.Equal(t, "שלום", gotBody.Text)

	var sent Message
	require.NoError(t, json.Unmarshal(result, &sent))
	assert.Equal(t, int64(7), sent.MessageID)
}

func TestCallRetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":502,"description":"bad gateway"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer server.Close()

	c := NewClient("t", WithBaseURL(server.URL), WithRetry(3, time.Millisecond))
	_, err := c.Call(context.Background(), SendMessage{ChatID: 5, Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"chat not found"}`))
	}))
	defer server.Close()

	c := NewClient("t", WithBaseURL(server.URL), WithRetry(3, time.Millisecond))
	_, err := c.Call(context.Background(), SendMessage{ChatID: 5, Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
	assert.Equal(t, int32(1), attempts.Load(), "a 400 is permanent, no retry")
}

func TestCallGivesUpAfterMaxAttempts(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"too many requests"}`))
	}))
	defer server.Close()

	c := NewClient("t", WithBaseURL(server.URL), WithRetry(2, time.Millisecond))
	_, err := c.Call(context.Background(), SendMessage{ChatID: 5, Text: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestCallHonorsContextDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error_code":500,"description":"boom"}`))
	}))
	defer server.Close()

	c := NewClient("t", WithBaseURL(server.URL), WithRetry(3, time.Minute))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Call(ctx, SendMessage{ChatID: 5, Text: "x"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "backoff must abort with the context")
}

func TestAnswerCallbackSwallowsErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"query is too old"}`))
	}))
	defer server.Close()

	c := NewClient("t", WithBaseURL(server.URL), WithRetry(1, time.Millisecond))
	// Must not panic or propagate.
	c.AnswerCallback(context.Background(), "cb-1")
}
