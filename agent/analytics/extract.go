package analytics

import (
	"strings"

	"github.com/mitchellh/mapstructure"
)

// NoAnswer is returned when a completed response carries no usable text.
const NoAnswer = "No response from Genie. Try rephrasing your question."

type message struct {
	ID             string       `mapstructure:"id"`
	ConversationID string       `mapstructure:"conversation_id"`
	Status         string       `mapstructure:"status"`
	Attachments    []attachment `mapstructure:"attachments"`
	Error          any          `mapstructure:"error"`
}

// attachment text is either {"content": "..."} or a bare string.
type attachment struct {
	AttachmentID string `mapstructure:"attachment_id"`
	Text         any    `mapstructure:"text"`
	Query        any    `mapstructure:"query"`
}

// extractor pulls answer text out of a decoded response; "" means not found.
type extractor func(payload map[string]any, question string) string

// extractors run in priority order; the first non-empty result wins.
var extractors = []extractor{
	attachmentsText,
	fieldText("text"),
	fieldText("answer"),
	fieldText("content"),
	fieldText("summary"),
}

func extractAnswer(payload map[string]any, question string) string {
	for _, ex := range extractors {
		if text := strings.TrimSpace(ex(payload, question)); text != "" {
			return text
		}
	}
	return NoAnswer
}

func decodeMessage(payload map[string]any) (message, error) {
	var msg message
	if payload == nil {
		return msg, nil
	}
	cfg := &mapstructure.DecoderConfig{
		Result:           &msg,
		WeaklyTypedInput: true,
	}
	dec, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return msg, err
	}
	if err := dec.Decode(payload); err != nil {
		return msg, err
	}
	return msg, nil
}

func attachmentsText(payload map[string]any, _ string) string {
	msg, err := decodeMessage(payload)
	if err != nil {
		return ""
	}

	parts := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		if text := strings.TrimSpace(textValue(a.Text)); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// fieldText reads a top-level string field. A "content" equal to the question
// is the echoed prompt, not an answer.
func fieldText(name string) extractor {
	return func(payload map[string]any, question string) string {
		text := strings.TrimSpace(textValue(payload[name]))
		if text == "" {
			return ""
		}
		if strings.EqualFold(text, strings.TrimSpace(question)) {
			return ""
		}
		return text
	}
}

func textValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["content"].(string); ok {
			return s
		}
	}
	return ""
}
