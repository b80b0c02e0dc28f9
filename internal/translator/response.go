package translator

import (
	"encoding/json"
	"strings"

	"github.com/llmgatewayd/llmgatewayd/pkg/models"
)

// finishReasonToStopReason maps an OpenAI finish_reason to an Anthropic
// stop_reason; anything unrecognized maps to end_turn.
func finishReasonToStopReason(reason string) string {
	switch reason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls", "function_call":
		return "tool_use"
	default:
		return "end_turn"
	}
}

// TransformResponse converts a non-streaming OpenAI Chat Completions
// response into an Anthropic Messages response, per section 4.6. originalModel
// is the client-declared model name (not the upstream's target model), which
// the Anthropic response's model field must echo back.
func TransformResponse(resp *models.OpenAIResponse, originalModel string) *models.AnthropicResponse {
	id := resp.ID
	if !strings.HasPrefix(id, "msg_") {
		id = "msg_" + id
	}

	out := &models.AnthropicResponse{
		ID:    id,
		Type:  "message",
		Role:  "assistant",
		Model: originalModel,
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.Content = responseContentBlocks(choice.Message)
		out.StopReason = finishReasonToStopReason(choice.FinishReason)
	}

	if resp.Usage != nil {
		out.Usage = &models.AnthropicUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	return out
}

// responseContentBlocks converts an OpenAI response message's content (and
// any tool calls) into Anthropic content blocks: a string content becomes a
// single text block, an array becomes one text block per text sub-block,
// and every tool call becomes a tool_use block.
func responseContentBlocks(msg models.OpenAIResponseMessage) []models.AnthropicContentBlock {
	var blocks []models.AnthropicContentBlock

	switch c := msg.Content.(type) {
	case string:
		if c != "" {
			blocks = append(blocks, models.AnthropicContentBlock{Type: "text", Text: c})
		}
	case []interface{}:
		for _, item := range c {
			if m, ok := item.(map[string]interface{}); ok {
				if text, ok := m["text"].(string); ok {
					blocks = append(blocks, models.AnthropicContentBlock{Type: "text", Text: text})
				}
			}
		}
	}

	for _, tc := range msg.ToolCalls {
		blocks = append(blocks, models.AnthropicContentBlock{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: parseToolArguments(tc.Function.Arguments),
		})
	}

	return blocks
}

func parseToolArguments(raw string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return map[string]interface{}{}
	}
	return v
}
