package gateway

import (
	"strings"

	"bedrock-gateway/internal/json"
)

// defaultMaxTokens is applied for every family when the caller leaves
// MaxTokens unset. Temperature and topP are never defaulted; absent means the
// field is omitted from the payload entirely.
const defaultMaxTokens = 4096

// familyBuilder pairs a model-identifier prefix with the payload builder for
// that vendor family. The slice is evaluated in order; first match wins.
type familyBuilder struct {
	prefix string
	build  func(msgs []Message, p Params) map[string]any
}

var familyBuilders = []familyBuilder{
	{"anthropic.", buildAnthropic},
	{"amazon.", buildTitan},
	{"cohere.", buildCohere},
	{"meta.", buildMeta},
	{"mistral.", buildMistral},
}

// BuildVendorRequest shapes the conversation into the request payload of the
// model's vendor family. Unknown identifiers fall back to the structured
// messages shape.
func BuildVendorRequest(modelID string, msgs []Message, p Params) ([]byte, error) {
	for _, fb := range familyBuilders {
		if strings.HasPrefix(modelID, fb.prefix) {
			return json.Marshal(fb.build(msgs, p))
		}
	}
	return json.Marshal(buildAnthropic(msgs, p))
}

func maxTokensOrDefault(p Params) int {
	if p.MaxTokens != nil {
		return *p.MaxTokens
	}
	return defaultMaxTokens
}

// buildAnthropic produces the structured messages shape: a messages array
// plus a separate system field. Also serves as the fallback shape.
func buildAnthropic(msgs []Message, p Params) map[string]any {
	messages := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, map[string]any{
			"role":    string(m.Role),
			"content": m.Content,
		})
	}

	root := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokensOrDefault(p),
		"messages":          messages,
	}
	if p.SystemPrompt != "" {
		root["system"] = p.SystemPrompt
	}
	if p.Temperature != nil {
		root["temperature"] = *p.Temperature
	}
	if p.TopP != nil {
		root["top_p"] = *p.TopP
	}
	if len(p.StopSequences) > 0 {
		root["stop_sequences"] = p.StopSequences
	}
	return root
}

func titanLabel(r Role) string {
	switch r {
	case RoleAssistant:
		return "Assistant:"
	case RoleSystem:
		return "System:"
	default:
		return "User:"
	}
}

// buildTitan flattens the conversation into a single labeled transcript with
// a trailing "Assistant:" cue so the model continues the last exchange.
func buildTitan(msgs []Message, p Params) map[string]any {
	var b strings.Builder
	if p.SystemPrompt != "" {
		b.WriteString("System: ")
		b.WriteString(p.SystemPrompt)
		b.WriteString("\n\n")
	}
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(titanLabel(m.Role))
		b.WriteString(" ")
		b.WriteString(m.Content)
	}
	b.WriteString("\n\nAssistant:")

	cfg := map[string]any{
		"maxTokenCount": maxTokensOrDefault(p),
	}
	if p.Temperature != nil {
		cfg["temperature"] = *p.Temperature
	}
	if p.TopP != nil {
		cfg["topP"] = *p.TopP
	}
	if len(p.StopSequences) > 0 {
		cfg["stopSequences"] = p.StopSequences
	}

	return map[string]any{
		"inputText":            b.String(),
		"textGenerationConfig": cfg,
	}
}

func cohereLabel(r Role) string {
	if r == RoleAssistant {
		return "Assistant:"
	}
	return "Human:"
}

// buildCohere flattens the conversation with Human/Assistant labels; the
// system prompt is prepended as plain text with no label.
func buildCohere(msgs []Message, p Params) map[string]any {
	var b strings.Builder
	if p.SystemPrompt != "" {
		b.WriteString(p.SystemPrompt)
		b.WriteString("\n\n")
	}
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(cohereLabel(m.Role))
		b.WriteString(" ")
		b.WriteString(m.Content)
	}

	root := map[string]any{
		"inputText":  b.String(),
		"max_tokens": maxTokensOrDefault(p),
	}
	if p.Temperature != nil {
		root["temperature"] = *p.Temperature
	}
	if p.TopP != nil {
		root["p"] = *p.TopP
	}
	if len(p.StopSequences) > 0 {
		root["stop_sequences"] = p.StopSequences
	}
	return root
}

// buildMeta concatenates turns with no role labels at all; the system prompt
// is prepended as plain text.
func buildMeta(msgs []Message, p Params) map[string]any {
	var b strings.Builder
	if p.SystemPrompt != "" {
		b.WriteString(p.SystemPrompt)
		b.WriteString("\n\n")
	}
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Content)
	}

	root := map[string]any{
		"inputText":   b.String(),
		"max_gen_len": maxTokensOrDefault(p),
	}
	if p.Temperature != nil {
		root["temperature"] = *p.Temperature
	}
	if p.TopP != nil {
		root["top_p"] = *p.TopP
	}
	return root
}

// buildMistral wraps the conversation in instruction-template delimiters.
func buildMistral(msgs []Message, p Params) map[string]any {
	root := map[string]any{
		"inputText":  mistralPrompt(msgs, p.SystemPrompt),
		"max_tokens": maxTokensOrDefault(p),
	}
	if p.Temperature != nil {
		root["temperature"] = *p.Temperature
	}
	if p.TopP != nil {
		root["top_p"] = *p.TopP
	}
	if len(p.StopSequences) > 0 {
		root["stop"] = p.StopSequences
	}
	return root
}

// mistralPrompt builds the [INST] template. The system block opens an [INST]
// section itself, so the first user turn must not open a second one. A prompt
// whose last turn is from the user ends at [/INST], ready for the assistant
// continuation; otherwise a fresh opener is appended.
func mistralPrompt(msgs []Message, system string) string {
	var b strings.Builder
	open := false

	if system != "" {
		b.WriteString("[INST] <<SYS>>\n")
		b.WriteString(system)
		b.WriteString("\n<</SYS>>\n\n")
		open = true
	}

	for _, m := range msgs {
		if m.Role == RoleAssistant {
			if open {
				b.WriteString(" [/INST]")
				open = false
			}
			b.WriteString(" ")
			b.WriteString(m.Content)
			continue
		}
		if !open {
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString("[INST] ")
			open = true
		}
		b.WriteString(m.Content)
		b.WriteString(" [/INST]")
		open = false
	}

	if n := len(msgs); n == 0 || msgs[n-1].Role == RoleAssistant {
		if !open {
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString("[INST] ")
		}
	}
	return b.String()
}
