// Package translator implements the Format Converter: Anthropic request ->
// OpenAI request, OpenAI response -> Anthropic response (buffered and
// streaming). Grounded on the teacher's internal/translator/request.go
// (TransformRequest, transformMessages, applyThinkingParameters,
// capMaxTokens), trimmed of its Responses-API branch and Claude-Code
// identity filtering, which have no counterpart in this proxy's closed
// three-dialect scope.
package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/llmgatewayd/llmgatewayd/pkg/models"
)

// modelMaxTokenLimits caps max_tokens/max_completion_tokens to what the
// target model actually accepts, before the request is forwarded.
var modelMaxTokenLimits = map[string]int{
	"gpt-4o":                 16384,
	"gpt-4o-2024-11-20":      16384,
	"gpt-4o-2024-08-06":      16384,
	"gpt-4o-2024-05-13":      4096,
	"gpt-4o-mini":            16384,
	"gpt-4o-mini-2024-07-18": 16384,
	"gpt-4-turbo":            4096,
	"gpt-4-turbo-2024-04-09": 4096,
	"gpt-4-turbo-preview":    4096,
	"gpt-4-0125-preview":     4096,
	"gpt-4-1106-preview":     4096,
	"gpt-4":                  8192,
	"gpt-4-32k":              8192,
	"gpt-4-0613":             8192,
	"gpt-4-32k-0613":         8192,
	"gpt-3.5-turbo":          4096,
	"gpt-3.5-turbo-0125":     4096,
	"gpt-3.5-turbo-1106":     4096,
	"gpt-3.5-turbo-16k":      4096,
	"o1":                     100000,
	"o1-preview":             32768,
	"o1-mini":                65536,
}

const defaultMaxTokenLimit = 4096

// capMaxTokens ensures max_tokens doesn't exceed the target model's limit.
func capMaxTokens(maxTokens int, targetModel string) int {
	if maxTokens <= 0 {
		return maxTokens
	}

	limit, ok := modelMaxTokenLimits[targetModel]
	if !ok {
		for prefix, modelLimit := range modelMaxTokenLimits {
			if strings.HasPrefix(targetModel, prefix) {
				limit = modelLimit
				ok = true
				break
			}
		}
	}
	if !ok {
		limit = defaultMaxTokenLimit
	}
	if maxTokens > limit {
		return limit
	}
	return maxTokens
}

// TransformRequest converts an Anthropic request into an OpenAI Chat
// Completions request targeting targetModel.
func TransformRequest(req *models.AnthropicRequest, targetModel string) (*models.OpenAIRequest, error) {
	openAIReq := &models.OpenAIRequest{
		Model:               targetModel,
		Stream:              req.Stream,
		MaxCompletionTokens: capMaxTokens(req.MaxTokens, targetModel),
		Temperature:         req.Temperature,
		TopP:                req.TopP,
	}

	if len(req.StopSequences) > 0 {
		openAIReq.Stop = req.StopSequences
	}

	messages, err := transformMessages(req)
	if err != nil {
		return nil, fmt.Errorf("transforming messages: %w", err)
	}
	openAIReq.Messages = messages

	if len(req.Tools) > 0 {
		openAIReq.Tools = transformTools(req.Tools)
	}
	if req.ToolChoice != nil {
		openAIReq.ToolChoice = transformToolChoice(req.ToolChoice)
	}

	if req.Stream {
		openAIReq.StreamOptions = &models.StreamOptions{IncludeUsage: true}
	}

	applyThinkingParameters(req, openAIReq, targetModel)

	return openAIReq, nil
}

// applyThinkingParameters maps Anthropic's thinking.budget_tokens to the
// reasoning-control parameter the target model family actually understands.
// Kept exhaustively from the teacher even though this proxy's dialect tag is
// a closed three-value set: a route's target model name, not its dialect, is
// how a third-party OpenAI-compatible endpoint (Gemini, Qwen, MiniMax,
// DeepSeek, Grok) is actually reached, and each needs a different knob.
func applyThinkingParameters(req *models.AnthropicRequest, openAIReq *models.OpenAIRequest, targetModel string) {
	if req.Thinking == nil || req.Thinking.BudgetTokens <= 0 {
		return
	}
	budgetTokens := req.Thinking.BudgetTokens

	switch {
	case isGPT5Model(targetModel):
		openAIReq.ReasoningEffort = mapBudgetToGPT5ReasoningEffort(budgetTokens, targetModel)

	case isO1OrO3Model(targetModel):
		openAIReq.ReasoningEffort = mapBudgetToReasoningEffort(budgetTokens)

	case isGrokModel(targetModel):
		if budgetTokens >= 20000 {
			openAIReq.ReasoningEffort = "high"
		} else {
			openAIReq.ReasoningEffort = "low"
		}

	case isGemini3Model(targetModel):
		if budgetTokens >= 16000 {
			openAIReq.ThinkingLevel = "high"
		} else {
			openAIReq.ThinkingLevel = "low"
		}

	case isGemini25Model(targetModel):
		budget := budgetTokens
		if budget > 24576 {
			budget = 24576
		}
		openAIReq.ThinkingConfig = &models.OpenRouterThinkingConfig{ThinkingBudget: budget}

	case isQwenModel(targetModel):
		enabled := true
		openAIReq.EnableThinking = &enabled
		openAIReq.ThinkingBudget = budgetTokens

	case isMiniMaxModel(targetModel):
		enabled := true
		openAIReq.ReasoningSplit = &enabled

	case isDeepSeekThinkingModel(targetModel):
		enabled := true
		openAIReq.EnableThinking = &enabled

	case isDeepSeekModel(targetModel):
		// base DeepSeek models have no reasoning knob; drop thinking silently.
	}
}

func isGPT5Model(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "gpt-5") || strings.HasPrefix(m, "gpt5") ||
		strings.Contains(m, "openai/gpt-5") || strings.Contains(m, "codex")
}

func mapBudgetToGPT5ReasoningEffort(budgetTokens int, model string) string {
	m := strings.ToLower(model)
	supportsXHigh := strings.Contains(m, "gpt-5.2") || strings.Contains(m, "gpt-5.3") ||
		strings.Contains(m, "gpt5.2") || strings.Contains(m, "gpt5.3")

	switch {
	case budgetTokens >= 80000 && supportsXHigh:
		return "xhigh"
	case budgetTokens >= 32000:
		return "high"
	case budgetTokens >= 16000:
		return "medium"
	case budgetTokens > 0:
		return "low"
	default:
		return "none"
	}
}

func isDeepSeekThinkingModel(model string) bool {
	m := strings.ToLower(model)
	return (strings.Contains(m, "deepseek") || strings.HasPrefix(m, "deepseek/")) &&
		(strings.Contains(m, "r1") || strings.Contains(m, "v3.1") ||
			strings.Contains(m, "v3.2") || strings.Contains(m, "thinking"))
}

func mapBudgetToReasoningEffort(budgetTokens int) string {
	switch {
	case budgetTokens >= 32000:
		return "high"
	case budgetTokens >= 16000:
		return "medium"
	case budgetTokens >= 4000:
		return "low"
	default:
		return "minimal"
	}
}

func isO1OrO3Model(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") ||
		strings.Contains(m, "openai/o1") || strings.Contains(m, "openai/o3")
}

func isGrokModel(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "grok") || strings.HasPrefix(m, "x-ai/")
}

func isGemini3Model(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "gemini-3") || strings.Contains(m, "gemini/3")
}

func isGemini25Model(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "gemini-2.5") || strings.Contains(m, "gemini-2-5") ||
		strings.Contains(m, "gemini/2.5")
}

func isQwenModel(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "qwen") || strings.HasPrefix(m, "qwen/")
}

func isMiniMaxModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "minimax")
}

func isDeepSeekModel(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "deepseek") || strings.HasPrefix(m, "deepseek/")
}

// transformMessages converts Anthropic messages to OpenAI format, prepending
// a system message derived from req.System.
func transformMessages(req *models.AnthropicRequest) ([]models.OpenAIMessage, error) {
	var messages []models.OpenAIMessage

	if req.System != nil {
		systemContent, err := extractSystemContent(req.System)
		if err != nil {
			return nil, fmt.Errorf("extracting system content: %w", err)
		}
		if systemContent != "" {
			messages = append(messages, models.OpenAIMessage{
				Role:    "system",
				Content: systemContent,
			})
		}
	}

	for _, msg := range req.Messages {
		openAIMsg, err := transformMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("transforming message: %w", err)
		}
		messages = append(messages, openAIMsg...)
	}

	return filterSystemReminders(messages), nil
}

// filterSystemReminders buffers user messages that appear between an
// assistant's tool_calls and their tool responses, so the strict OpenAI
// sequencing requirement (assistant-with-tool_calls must be immediately
// followed by tool responses) still holds once a client interleaves user
// turns before every tool result has come back.
func filterSystemReminders(messages []models.OpenAIMessage) []models.OpenAIMessage {
	filtered := make([]models.OpenAIMessage, 0, len(messages))
	pendingToolCallIDs := make(map[string]bool)
	var bufferedMessages []models.OpenAIMessage

	for _, msg := range messages {
		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			pendingToolCallIDs = make(map[string]bool)
			for _, tc := range msg.ToolCalls {
				pendingToolCallIDs[tc.ID] = true
			}
			filtered = append(filtered, msg)
			continue
		}

		if msg.Role == "tool" && msg.ToolCallID != "" {
			delete(pendingToolCallIDs, msg.ToolCallID)
			filtered = append(filtered, msg)
			if len(pendingToolCallIDs) == 0 && len(bufferedMessages) > 0 {
				filtered = append(filtered, bufferedMessages...)
				bufferedMessages = bufferedMessages[:0]
			}
			continue
		}

		if msg.Role == "user" && len(pendingToolCallIDs) > 0 {
			bufferedMessages = append(bufferedMessages, msg)
			continue
		}

		filtered = append(filtered, msg)
	}

	if len(bufferedMessages) > 0 {
		filtered = append(filtered, bufferedMessages...)
	}
	return filtered
}

// extractSystemContent extracts the system message content: a string
// directly, or the text of every type=="text" block in a content-block array
// joined by a blank line.
func extractSystemContent(system interface{}) (string, error) {
	switch s := system.(type) {
	case string:
		return s, nil
	case []interface{}:
		var parts []string
		for _, item := range s {
			if block, ok := item.(map[string]interface{}); ok {
				if blockType, _ := block["type"].(string); blockType == "text" {
					if text, ok := block["text"].(string); ok {
						parts = append(parts, text)
					}
				}
			}
		}
		return strings.Join(parts, "\n"), nil
	default:
		data, err := json.Marshal(system)
		if err != nil {
			return "", err
		}
		var str string
		if err := json.Unmarshal(data, &str); err == nil {
			return str, nil
		}
		return string(data), nil
	}
}

// transformMessage converts a single Anthropic message to OpenAI format. May
// return multiple messages, e.g. a user message carrying tool results is
// split into the "tool" role messages OpenAI expects.
func transformMessage(msg models.AnthropicMessage) ([]models.OpenAIMessage, error) {
	content, err := parseContent(msg.Content)
	if err != nil {
		return nil, err
	}

	var result []models.OpenAIMessage

	switch msg.Role {
	case "user":
		toolResults := extractToolResults(content)

		hasNonToolContent := false
		for _, block := range content {
			if block.Type != "tool_result" {
				hasNonToolContent = true
				break
			}
		}
		if hasNonToolContent {
			result = append(result, transformUserMessage(content))
		}
		result = append(result, toolResults...)
	case "assistant":
		result = append(result, transformAssistantMessage(content))
	default:
		result = append(result, models.OpenAIMessage{
			Role:    msg.Role,
			Content: getTextContent(content),
		})
	}

	return result, nil
}

// parseContent parses message content which can be string or []ContentBlock.
func parseContent(content interface{}) ([]models.ContentBlock, error) {
	switch c := content.(type) {
	case string:
		return []models.ContentBlock{{Type: "text", Text: c}}, nil
	case []interface{}:
		var blocks []models.ContentBlock
		for _, item := range c {
			block, err := parseContentBlock(item)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
		}
		return blocks, nil
	default:
		data, err := json.Marshal(content)
		if err != nil {
			return nil, fmt.Errorf("cannot marshal content: %w", err)
		}
		var str string
		if err := json.Unmarshal(data, &str); err == nil {
			return []models.ContentBlock{{Type: "text", Text: str}}, nil
		}
		var arr []interface{}
		if err := json.Unmarshal(data, &arr); err == nil {
			return parseContent(arr)
		}
		return nil, fmt.Errorf("unsupported content type: %T", content)
	}
}

func parseContentBlock(item interface{}) (models.ContentBlock, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return models.ContentBlock{}, err
	}
	var block models.ContentBlock
	if err := json.Unmarshal(data, &block); err != nil {
		return models.ContentBlock{}, err
	}
	return block, nil
}

// transformUserMessage transforms user message content (text and image
// blocks; tool_result blocks are handled separately by extractToolResults).
func transformUserMessage(content []models.ContentBlock) models.OpenAIMessage {
	var parts []models.OpenAIContentPart

	for _, block := range content {
		switch block.Type {
		case "text":
			parts = append(parts, models.OpenAIContentPart{Type: "text", Text: block.Text})
		case "image":
			if block.Source != nil && block.Source.Type == "base64" {
				dataURL := fmt.Sprintf("data:%s;base64,%s", block.Source.MediaType, block.Source.Data)
				parts = append(parts, models.OpenAIContentPart{
					Type:     "image_url",
					ImageURL: &models.ImageURL{URL: dataURL},
				})
			}
		}
	}

	if len(parts) == 1 && parts[0].Type == "text" {
		return models.OpenAIMessage{Role: "user", Content: parts[0].Text}
	}
	if len(parts) == 0 {
		return models.OpenAIMessage{Role: "user", Content: ""}
	}
	return models.OpenAIMessage{Role: "user", Content: contentPartsToInterface(parts)}
}

func contentPartsToInterface(parts []models.OpenAIContentPart) interface{} {
	result := make([]interface{}, len(parts))
	for i, p := range parts {
		result[i] = p
	}
	return result
}

// extractToolResults converts tool_result blocks to OpenAI "tool" role
// messages.
func extractToolResults(content []models.ContentBlock) []models.OpenAIMessage {
	var results []models.OpenAIMessage
	for _, block := range content {
		if block.Type != "tool_result" {
			continue
		}
		output := extractToolResultContentForChat(block)
		if block.IsError {
			output = "[Error] " + output
		}
		results = append(results, models.OpenAIMessage{
			Role:       "tool",
			Content:    output,
			ToolCallID: block.ToolUseID,
		})
	}
	return results
}

// extractToolResultContentForChat extracts content from a tool_result block,
// which may be a plain string or an array of nested content blocks.
func extractToolResultContentForChat(block models.ContentBlock) string {
	if block.Content == nil {
		return ""
	}
	if str, ok := block.Content.(string); ok {
		return str
	}
	if arr, ok := block.Content.([]interface{}); ok {
		var parts []string
		for _, item := range arr {
			if itemMap, ok := item.(map[string]interface{}); ok {
				if itemType, _ := itemMap["type"].(string); itemType == "text" {
					if text, ok := itemMap["text"].(string); ok {
						parts = append(parts, text)
					}
				}
			}
		}
		return strings.Join(parts, "\n")
	}
	data, err := json.Marshal(block.Content)
	if err != nil {
		return ""
	}
	return string(data)
}

// transformAssistantMessage transforms assistant message content (text and
// tool_use blocks) to OpenAI format.
func transformAssistantMessage(content []models.ContentBlock) models.OpenAIMessage {
	msg := models.OpenAIMessage{Role: "assistant"}

	var textParts []string
	var toolCalls []models.OpenAIToolCall

	for i, block := range content {
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
		case "tool_use":
			inputJSON, _ := json.Marshal(block.Input)
			toolCalls = append(toolCalls, models.OpenAIToolCall{
				ID:    block.ID,
				Type:  "function",
				Index: i,
				Function: models.OpenAIFunctionCall{
					Name:      block.Name,
					Arguments: string(inputJSON),
				},
			})
		}
	}

	if len(textParts) > 0 {
		msg.Content = strings.Join(textParts, "")
	}
	if len(toolCalls) > 0 {
		msg.ToolCalls = toolCalls
	}
	return msg
}

func getTextContent(content []models.ContentBlock) string {
	var parts []string
	for _, block := range content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "")
}
