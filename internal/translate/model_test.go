package translate

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

	"github.com/datasage-io/datasage/internal/errs"
)

func modelServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func completionJSON(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(body)
}

func TestModelTranslator_Translate(t *testing.T) {
	srv := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[0].Content, `"df"`)
		assert.Contains(t, req.Messages[0].Content, "region")
		assert.Equal(t, "total sales by region", req.Messages[1].Content)

		w.Write([]byte(completionJSON("SELECT region FROM df LIMIT 10")))
	})

	m := NewModelTranslator(ModelConfig{
		BaseURL: srv.URL,
		Name:    "test-model",
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}, "df", nil)

	res, err := m.Translate(context.Background(), "total sales by region", testSchema())
	require.NoError(t, err)
	assert.Equal(t, OriginModel, res.Origin)
	assert.Equal(t, "SELECT region FROM df LIMIT 10", res.SQL)
}

func TestModelTranslator_StripsFences(t *testing.T) {
	srv := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionJSON("```sql\nSELECT * FROM df LIMIT 5\n```")))
	})

	m := NewModelTranslator(ModelConfig{BaseURL: srv.URL, APIKey: "k", Timeout: 5 * time.Second}, "df", nil)

	res, err := m.Translate(context.Background(), "show everything", testSchema())
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM df LIMIT 5", res.SQL)
}

func TestModelTranslator_NotConfigured(t *testing.T) {
	m := NewModelTranslator(ModelConfig{Timeout: time.Second}, "df", nil)
	assert.False(t, m.Available())

	_, err := m.Translate(context.Background(), "anything", testSchema())
	require.Error(t, err)
	assert.True(t, errs.IsTranslationUnavailable(err))
}

func TestModelTranslator_RetriesTransientOnce(t *testing.T) {
	var calls atomic.Int32
	srv := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(completionJSON("SELECT * FROM df LIMIT 1")))
	})

	m := NewModelTranslator(ModelConfig{
		BaseURL: srv.URL, APIKey: "k", Timeout: 5 * time.Second, RetryTransient: true,
	}, "df", nil)

	res, err := m.Translate(context.Background(), "anything", testSchema())
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM df LIMIT 1", res.SQL)
	assert.Equal(t, int32(2), calls.Load())
}

func TestModelTranslator_NoRetryWhenDisabled(t *testing.T) {
	var calls atomic.Int32
	srv := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	})

	m := NewModelTranslator(ModelConfig{
		BaseURL: srv.URL, APIKey: "k", Timeout: 5 * time.Second, RetryTransient: false,
	}, "df", nil)

	_, err := m.Translate(context.Background(), "anything", testSchema())
	require.Error(t, err)
	assert.True(t, errs.IsTranslationUnavailable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestModelTranslator_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	m := NewModelTranslator(ModelConfig{
		BaseURL: srv.URL, APIKey: "k", Timeout: 5 * time.Second, RetryTransient: true,
	}, "df", nil)

	_, err := m.Translate(context.Background(), "anything", testSchema())
	require.Error(t, err)
	assert.True(t, errs.IsTranslationUnavailable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestModelTranslator_EmptyCompletion(t *testing.T) {
	srv := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionJSON("   ")))
	})

	m := NewModelTranslator(ModelConfig{BaseURL: srv.URL, APIKey: "k", Timeout: 5 * time.Second}, "df", nil)

	_, err := m.Translate(context.Background(), "anything", testSchema())
	require.Error(t, err)
	assert.True(t, errs.IsTranslationUnavailable(err))
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare sql", in: "SELECT 1", want: "SELECT 1"},
		{name: "fence with tag", in: "```sql\nSELECT 1\n```", want: "SELECT 1"},
		{name: "fence without tag", in: "```\nSELECT 1\n```", want: "SELECT 1"},
		{name: "surrounding whitespace", in: "  \nSELECT 1\n ", want: "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}
