package translator

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/llmgatewayd/llmgatewayd/pkg/models"
)

// StreamState tracks the state of SSE stream transformation.
type StreamState int

const (
	StateIdle StreamState = iota
	StateMessageStarted
	StateTextContent
	StateToolCall
	StateDone
)

// UsageCallback is called when streaming completes with usage information.
type UsageCallback func(inputTokens, outputTokens int)

// StreamProcessor transforms an OpenAI Chat Completions SSE stream into an
// Anthropic Messages SSE stream, per section 4.6.
type StreamProcessor struct {
	mu sync.Mutex

	state       StreamState
	messageID   string
	targetModel string

	textStarted    bool
	textBlockIndex int

	thinkingStarted    bool
	thinkingBlockIndex int

	toolCallIndex   int
	activeToolCalls map[int]*toolCallState

	blocksClosed        bool
	messageDeltaEmitted bool

	usage         *models.Usage
	usageCallback UsageCallback

	writer io.Writer
}

type toolCallState struct {
	id         string
	name       string
	arguments  string
	blockIndex int
	started    bool
	closed     bool
}

// NewStreamProcessor creates a new stream processor. messageID is the
// Anthropic-facing message id (see internal/translator.NewMessageID) and
// targetModel is the client-declared model echoed back in message_start.
func NewStreamProcessor(writer io.Writer, messageID, targetModel string) *StreamProcessor {
	return &StreamProcessor{
		writer:             writer,
		messageID:          messageID,
		targetModel:        targetModel,
		state:              StateIdle,
		textBlockIndex:     0,
		thinkingBlockIndex: -1, // thinking, if present, comes before text
		toolCallIndex:      0,
		activeToolCalls:    make(map[int]*toolCallState),
	}
}

// SetUsageCallback sets the callback invoked when the stream completes with
// final token usage.
func (sp *StreamProcessor) SetUsageCallback(callback UsageCallback) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.usageCallback = callback
}

// GetUsage returns the final usage statistics observed in the stream. Call
// after ProcessStream returns.
func (sp *StreamProcessor) GetUsage() (inputTokens, outputTokens int) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.usage != nil {
		return sp.usage.PromptTokens, sp.usage.CompletionTokens
	}
	return 0, 0
}

// ProcessStream reads an OpenAI SSE stream and writes the equivalent
// Anthropic SSE events to sp's writer.
func (sp *StreamProcessor) ProcessStream(reader io.Reader) error {
	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")

			if data == "[DONE]" {
				return sp.finalize()
			}

			var chunk models.OpenAIStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}

			if err := sp.processChunk(&chunk); err != nil {
				return fmt.Errorf("processing chunk: %w", err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning stream: %w", err)
	}

	return sp.finalize()
}

// processChunk handles a single OpenAI stream chunk.
func (sp *StreamProcessor) processChunk(chunk *models.OpenAIStreamChunk) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if chunk.Usage != nil {
		sp.usage = chunk.Usage
	}

	if sp.state == StateIdle {
		if err := sp.emitMessageStart(); err != nil {
			return err
		}
		sp.state = StateMessageStarted
	}

	for _, choice := range chunk.Choices {
		if err := sp.processChoice(&choice); err != nil {
			return err
		}

		if choice.FinishReason != "" {
			if err := sp.handleFinishReason(choice.FinishReason); err != nil {
				return err
			}
		}
	}

	return nil
}

// processChoice processes a single choice from the stream chunk.
func (sp *StreamProcessor) processChoice(choice *models.StreamChoice) error {
	delta := &choice.Delta

	// Reasoning/thinking content precedes regular text output.
	if delta.Reasoning != "" {
		if err := sp.handleThinkingContent(delta.Reasoning); err != nil {
			return err
		}
	}

	if delta.Content != "" {
		if err := sp.handleTextContent(delta.Content); err != nil {
			return err
		}
	}

	if len(delta.ToolCalls) > 0 {
		for _, tc := range delta.ToolCalls {
			if err := sp.handleToolCall(&tc); err != nil {
				return err
			}
		}
	}

	return nil
}

// handleThinkingContent emits reasoning content as a "thinking" content
// block.
func (sp *StreamProcessor) handleThinkingContent(thinking string) error {
	if !sp.thinkingStarted {
		sp.thinkingBlockIndex = 0
		sp.textBlockIndex = 1 // shift text to make room for the thinking block

		if err := sp.emitThinkingBlockStart(sp.thinkingBlockIndex); err != nil {
			return err
		}
		sp.thinkingStarted = true
	}

	return sp.emitThinkingBlockDelta(sp.thinkingBlockIndex, thinking)
}

// handleTextContent handles text content from the stream.
func (sp *StreamProcessor) handleTextContent(text string) error {
	if !sp.textStarted {
		if err := sp.emitContentBlockStart(sp.textBlockIndex, "text", "", ""); err != nil {
			return err
		}
		sp.textStarted = true
		sp.state = StateTextContent
	}

	return sp.emitContentBlockDelta(sp.textBlockIndex, "text_delta", text, "")
}

// handleToolCall handles a tool call delta from the stream.
func (sp *StreamProcessor) handleToolCall(tc *models.OpenAIToolCall) error {
	tcState, exists := sp.activeToolCalls[tc.Index]

	if !exists {
		tcState = &toolCallState{}
		if sp.textStarted {
			tcState.blockIndex = sp.textBlockIndex + 1 + len(sp.activeToolCalls)
		} else {
			tcState.blockIndex = len(sp.activeToolCalls)
		}
		sp.activeToolCalls[tc.Index] = tcState
	}

	if tc.ID != "" {
		tcState.id = tc.ID
	}
	if tc.Function.Name != "" {
		tcState.name = tc.Function.Name
	}
	if tc.Function.Arguments != "" {
		tcState.arguments += tc.Function.Arguments
	}

	if tcState.id != "" && tcState.name != "" && !tcState.started {
		if sp.textStarted && sp.state == StateTextContent {
			if err := sp.emitContentBlockStop(sp.textBlockIndex); err != nil {
				return err
			}
			sp.state = StateToolCall
		}

		if err := sp.emitContentBlockStart(tcState.blockIndex, "tool_use", tcState.id, tcState.name); err != nil {
			return err
		}
		tcState.started = true
	}

	if tcState.started && tc.Function.Arguments != "" {
		if err := sp.emitContentBlockDelta(tcState.blockIndex, "input_json_delta", "", tc.Function.Arguments); err != nil {
			return err
		}
	}

	return nil
}

// closeOpenBlocks emits content_block_stop for every content block that was
// started and not yet closed (thinking, text, tool calls, in that order). A
// no-op, idempotent once called, so it is safe whether it runs from
// handleFinishReason or from finalize.
func (sp *StreamProcessor) closeOpenBlocks() error {
	if sp.blocksClosed {
		return nil
	}
	sp.blocksClosed = true

	if sp.thinkingStarted {
		if err := sp.emitContentBlockStop(sp.thinkingBlockIndex); err != nil {
			return err
		}
	}

	if sp.textStarted && sp.state == StateTextContent {
		if err := sp.emitContentBlockStop(sp.textBlockIndex); err != nil {
			return err
		}
	}

	for _, tcState := range sp.activeToolCalls {
		if tcState.started && !tcState.closed {
			if err := sp.emitContentBlockStop(tcState.blockIndex); err != nil {
				return err
			}
			tcState.closed = true
		}
	}

	return nil
}

// handleFinishReason closes any open content blocks and emits message_delta.
func (sp *StreamProcessor) handleFinishReason(reason string) error {
	if err := sp.closeOpenBlocks(); err != nil {
		return err
	}
	sp.messageDeltaEmitted = true
	return sp.emitMessageDelta(mapFinishReason(reason))
}

// finalize completes the stream processing. It closes any content blocks a
// finish_reason chunk never arrived to close and emits message_delta if
// handleFinishReason never ran, so a stream that ends at [DONE] without a
// finish_reason still produces the full content_block_stop/message_delta/
// message_stop sequence section 4.6 requires.
func (sp *StreamProcessor) finalize() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.usageCallback != nil && sp.usage != nil {
		sp.usageCallback(sp.usage.PromptTokens, sp.usage.CompletionTokens)
	}

	if err := sp.closeOpenBlocks(); err != nil {
		return err
	}

	if !sp.messageDeltaEmitted {
		if err := sp.emitMessageDelta(mapFinishReason("")); err != nil {
			return err
		}
	}

	return sp.emitMessageStop()
}

// emitMessageStart emits a message_start event.
func (sp *StreamProcessor) emitMessageStart() error {
	event := models.MessageStartEvent{
		Type: models.EventMessageStart,
		Message: models.AnthropicResponse{
			ID:         sp.messageID,
			Type:       "message",
			Role:       "assistant",
			Content:    []models.AnthropicContentBlock{},
			Model:      sp.targetModel,
			StopReason: "",
			Usage: &models.AnthropicUsage{
				InputTokens:  0,
				OutputTokens: 0,
			},
		},
	}

	return sp.writeEvent(models.EventMessageStart, event)
}

// emitContentBlockStart emits a content_block_start event.
func (sp *StreamProcessor) emitContentBlockStart(index int, blockType, id, name string) error {
	event := models.ContentBlockStartEvent{
		Type:  models.EventContentBlockStart,
		Index: index,
		ContentBlock: models.ContentBlockStartData{
			Type: blockType,
		},
	}

	if blockType == "text" {
		event.ContentBlock.Text = ""
	} else if blockType == "tool_use" {
		event.ContentBlock.ID = id
		event.ContentBlock.Name = name
	}

	return sp.writeEvent(models.EventContentBlockStart, event)
}

// emitContentBlockDelta emits a content_block_delta event.
func (sp *StreamProcessor) emitContentBlockDelta(index int, deltaType, text, partialJSON string) error {
	event := models.ContentBlockDeltaEvent{
		Type:  models.EventContentBlockDelta,
		Index: index,
		Delta: models.DeltaData{
			Type: deltaType,
		},
	}

	if deltaType == "text_delta" {
		event.Delta.Text = text
	} else if deltaType == "input_json_delta" {
		event.Delta.PartialJSON = partialJSON
	}

	return sp.writeEvent(models.EventContentBlockDelta, event)
}

// emitThinkingBlockStart emits a content_block_start event for a thinking block.
func (sp *StreamProcessor) emitThinkingBlockStart(index int) error {
	event := models.ContentBlockStartEvent{
		Type:  models.EventContentBlockStart,
		Index: index,
		ContentBlock: models.ContentBlockStartData{
			Type:     "thinking",
			Thinking: "",
		},
	}

	return sp.writeEvent(models.EventContentBlockStart, event)
}

// emitThinkingBlockDelta emits a content_block_delta event for thinking content.
func (sp *StreamProcessor) emitThinkingBlockDelta(index int, thinking string) error {
	event := models.ContentBlockDeltaEvent{
		Type:  models.EventContentBlockDelta,
		Index: index,
		Delta: models.DeltaData{
			Type:     "thinking_delta",
			Thinking: thinking,
		},
	}

	return sp.writeEvent(models.EventContentBlockDelta, event)
}

// emitContentBlockStop emits a content_block_stop event.
func (sp *StreamProcessor) emitContentBlockStop(index int) error {
	event := models.ContentBlockStopEvent{
		Type:  models.EventContentBlockStop,
		Index: index,
	}

	return sp.writeEvent(models.EventContentBlockStop, event)
}

// emitMessageDelta emits a message_delta event.
func (sp *StreamProcessor) emitMessageDelta(stopReason string) error {
	outputTokens := 0
	if sp.usage != nil {
		outputTokens = sp.usage.CompletionTokens
	}

	event := models.MessageDeltaEvent{
		Type: models.EventMessageDelta,
		Delta: models.MessageDeltaData{
			StopReason: stopReason,
		},
		Usage: &models.MessageDeltaUsage{
			OutputTokens: outputTokens,
		},
	}

	return sp.writeEvent(models.EventMessageDelta, event)
}

// emitMessageStop emits a message_stop event.
func (sp *StreamProcessor) emitMessageStop() error {
	event := models.MessageStopEvent{
		Type: models.EventMessageStop,
	}

	return sp.writeEvent(models.EventMessageStop, event)
}

// writeEvent writes an SSE event to the output.
func (sp *StreamProcessor) writeEvent(eventType string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event data: %w", err)
	}

	return sp.writeSSE(eventType, string(jsonData))
}

// writeSSE writes a raw SSE event to the output.
func (sp *StreamProcessor) writeSSE(event, data string) error {
	var output string
	if event != "" {
		output = fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
	} else {
		output = fmt.Sprintf("data: %s\n\n", data)
	}

	_, err := sp.writer.Write([]byte(output))
	return err
}

// mapFinishReason maps an OpenAI finish_reason to an Anthropic stop_reason.
func mapFinishReason(reason string) string {
	return finishReasonToStopReason(reason)
}
