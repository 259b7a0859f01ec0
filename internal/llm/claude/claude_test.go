package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/mailtriage/internal/llm"
)

func TestToSDKParams(t *testing.T) {
	params := toSDKParams("claude-sonnet-4-5", []llm.Message{
		{Role: llm.RoleSystem, Content: "you triage email"},
		{Role: llm.RoleUser, Content: "FROM: a@b.c"},
	}, 0.2, 512)

	assert.Equal(t, anthropic.Model("claude-sonnet-4-5"), params.Model)
	assert.Equal(t, int64(512), params.MaxTokens)
	require.True(t, params.Temperature.Valid())
	assert.InDelta(t, 0.2, params.Temperature.Value, 1e-9)

	require.Len(t, params.System, 1)
	assert.Equal(t, "you triage email", params.System[0].Text)

	require.Len(t, params.Messages, 1)
	assert.Equal(t, anthropic.MessageParamRoleUser, params.Messages[0].Role)
	require.Len(t, params.Messages[0].Content, 1)
	require.NotNil(t, params.Messages[0].Content[0].OfText)
	assert.Equal(t, "FROM: a@b.c", params.Messages[0].Content[0].OfText.Text)
}

func TestToSDKParamsAssistantTurn(t *testing.T) {
	params := toSDKParams("m", []llm.Message{
		{Role: llm.RoleUser, Content: "q"},
		{Role: llm.RoleAssistant, Content: "a"},
	}, 0, 1)

	require.Len(t, params.Messages, 2)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, params.Messages[1].Role)
	assert.Empty(t, params.System)
}

func TestFromSDKMessage(t *testing.T) {
	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: `{"category":`},
			{Type: "thinking"},
			{Type: "text", Text: `"Other"}`},
		},
		StopReason: anthropic.StopReasonEndTurn,
	}
	assert.Equal(t, `{"category":"Other"}`, fromSDKMessage(msg))
	assert.Equal(t, "", fromSDKMessage(nil))
}

func TestChat(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-test",
			"content":     []map[string]string{{"type": "text", "text": "ok"}},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 3, "output_tokens": 1},
		})
	}))
	defer srv.Close()

	c := New("test-key", option.WithBaseURL(srv.URL))
	out, err := c.Chat(context.Background(), "claude-test", []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, 0.2)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, calls)
}

func TestChatErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
	}))
	defer srv.Close()

	c := New("k", option.WithBaseURL(srv.URL))
	_, err := c.Chat(context.Background(), "m", []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, 0.2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claude messages")
	assert.Equal(t, 1, calls)
}
