package translator

import (
	"testing"

	"github.com/llmgatewayd/llmgatewayd/pkg/models"
)

func TestTransformResponseBasic(t *testing.T) {
	resp := &models.OpenAIResponse{
		ID: "chatcmpl-123",
		Choices: []models.OpenAIChoice{{
			Message:      models.OpenAIResponseMessage{Role: "assistant", Content: "hello"},
			FinishReason: "stop",
		}},
		Usage: &models.Usage{PromptTokens: 10, CompletionTokens: 5},
	}
	out := TransformResponse(resp, "claude-3-opus")

	if out.ID != "msg_chatcmpl-123" {
		t.Errorf("ID = %q, want msg_-prefixed", out.ID)
	}
	if out.Model != "claude-3-opus" {
		t.Errorf("Model = %q, want the client-declared model", out.Model)
	}
	if out.StopReason != "end_turn" {
		t.Errorf("StopReason = %q, want end_turn", out.StopReason)
	}
	if len(out.Content) != 1 || out.Content[0].Text != "hello" {
		t.Fatalf("Content = %+v", out.Content)
	}
	if out.Usage.InputTokens != 10 || out.Usage.OutputTokens != 5 {
		t.Errorf("Usage = %+v", out.Usage)
	}
}

func TestTransformResponseIDAlreadyPrefixed(t *testing.T) {
	resp := &models.OpenAIResponse{ID: "msg_abc", Choices: []models.OpenAIChoice{{FinishReason: "stop"}}}
	out := TransformResponse(resp, "m")
	if out.ID != "msg_abc" {
		t.Errorf("ID = %q, want unchanged msg_abc", out.ID)
	}
}

func TestFinishReasonMapping(t *testing.T) {
	cases := map[string]string{
		"stop":          "end_turn",
		"length":        "max_tokens",
		"tool_calls":    "tool_use",
		"function_call": "tool_use",
		"content_filter": "end_turn",
	}
	for in, want := range cases {
		if got := finishReasonToStopReason(in); got != want {
			t.Errorf("finishReasonToStopReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTransformResponseToolCalls(t *testing.T) {
	resp := &models.OpenAIResponse{
		ID: "c1",
		Choices: []models.OpenAIChoice{{
			Message: models.OpenAIResponseMessage{
				ToolCalls: []models.OpenAIToolCall{{
					ID:       "call_1",
					Function: models.OpenAIFunctionCall{Name: "get_weather", Arguments: `{"city":"SF"}`},
				}},
			},
			FinishReason: "tool_calls",
		}},
	}
	out := TransformResponse(resp, "claude")
	if out.StopReason != "tool_use" {
		t.Errorf("StopReason = %q, want tool_use", out.StopReason)
	}
	if len(out.Content) != 1 || out.Content[0].Type != "tool_use" || out.Content[0].Name != "get_weather" {
		t.Fatalf("Content = %+v", out.Content)
	}
}
