package translator

import "github.com/google/uuid"

// NewMessageID generates an Anthropic-style message id for streamed
// responses that have no upstream-issued id to prefix (OpenAI only assigns
// one per chunk, not per logical message, for some providers' stream
// implementations).
func NewMessageID() string {
	return "msg_" + uuid.NewString()
}
