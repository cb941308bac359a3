package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeminiRoleCompression(t *testing.T) {
	p := NewGeminiProvider("", "key", "")

	contents := p.formatContents([]Message{
		{Role: RoleUser, Content: "a"},
		{Role: RoleUser, Content: "b"},
		{Role: RoleAssistant, Content: "c"},
	})

	require.Equal(t, []geminiContent{
		{Role: "user", Parts: []geminiPart{{Text: "a"}, {Text: "b"}}},
		{Role: "model", Parts: []geminiPart{{Text: "c"}}},
	}, contents)
}

func TestGeminiRoleCompressionSystemMapsToUser(t *testing.T) {
	p := NewGeminiProvider("", "key", "")

	contents := p.formatContents([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleAssistant, Content: "again"},
	})

	require.Equal(t, []geminiContent{
		{Role: "user", Parts: []geminiPart{{Text: "be brief"}, {Text: "hi"}}},
		{Role: "model", Parts: []geminiPart{{Text: "hello"}, {Text: "again"}}},
	}, contents)
}

func TestGeminiSendMessage(t *testing.T) {
	var gotReq geminiReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"bonjour"}]}}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":1,"totalTokenCount":3}}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "test-key", "")
	resp, err := p.SendMessage(context.Background(), []Message{{Role: RoleUser, Content: "hello"}}, Options{})
	require.NoError(t, err)
	require.Equal(t, "bonjour", resp.Content)
	require.Equal(t, 3, resp.Usage.TotalTokens)

	require.Equal(t, DefaultTemperature, gotReq.GenerationConfig.Temperature)
	require.Equal(t, 2048, gotReq.GenerationConfig.MaxOutputTokens)
	require.Len(t, gotReq.SafetySettings, 4)
	for _, s := range gotReq.SafetySettings {
		require.Equal(t, "BLOCK_NONE", s.Threshold)
	}
}

func TestGeminiErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{"exhausted", http.StatusTooManyRequests, `{"error":{"code":429,"message":"try later","status":"RESOURCE_EXHAUSTED"}}`, KindRateLimit},
		{"bad key", http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`, KindAuth},
		{"unmapped", http.StatusInternalServerError, `{"error":{"code":500,"message":"backend error","status":"INTERNAL"}}`, KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			p := NewGeminiProvider(srv.URL, "test-key", "")
			_, err := p.SendMessage(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, Options{})
			require.Error(t, err)
			require.Equal(t, tc.kind, KindOf(err))
		})
	}
}

func TestGeminiEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "test-key", "")
	_, err := p.SendMessage(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, Options{})
	require.ErrorContains(t, err, "no response generated")
}

func TestGeminiTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, 10, req.GenerationConfig.MaxOutputTokens)
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"OK"}]}}]}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "test-key", "")
	result := p.TestConnection(context.Background())
	require.True(t, result.Success)
	require.Contains(t, result.Message, "gemini-2.0-flash")
}

func TestGeminiHasNoStreamingCapability(t *testing.T) {
	var p Provider = NewGeminiProvider("", "key", "")
	_, ok := p.(StreamingProvider)
	require.False(t, ok)
}
