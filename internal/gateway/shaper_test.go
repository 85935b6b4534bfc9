package gateway

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func shape(t *testing.T, modelID string, msgs []Message, p Params) gjson.Result {
	t.Helper()
	payload, err := BuildVendorRequest(modelID, msgs, p)
	if err != nil {
		t.Fatalf("BuildVendorRequest(%s) error: %v", modelID, err)
	}
	return gjson.ParseBytes(payload)
}

var basicTurns = []Message{
	{Role: RoleUser, Content: "hello"},
	{Role: RoleAssistant, Content: "hi there"},
	{Role: RoleUser, Content: "how are you"},
}

func TestShaperFamilyDispatch(t *testing.T) {
	tests := []struct {
		modelID       string
		requiredField string
	}{
		{"anthropic.claude-3-sonnet", "messages"},
		{"amazon.titan-text-express-v1", "inputText"},
		{"cohere.command-text-v14", "inputText"},
		{"meta.llama3-8b-instruct-v1", "inputText"},
		{"mistral.mistral-7b-instruct-v0", "inputText"},
		{"unknown.some-model", "messages"},
	}

	for _, tt := range tests {
		doc := shape(t, tt.modelID, basicTurns, Params{})
		if !doc.Get(tt.requiredField).Exists() {
			t.Errorf("%s: expected field %q in payload", tt.modelID, tt.requiredField)
		}
	}
}

func TestShaperMaxTokensDefault(t *testing.T) {
	tests := []struct {
		modelID string
		path    string
	}{
		{"anthropic.claude-3-haiku", "max_tokens"},
		{"amazon.titan-text-lite-v1", "textGenerationConfig.maxTokenCount"},
		{"cohere.command-light", "max_tokens"},
		{"meta.llama3-70b", "max_gen_len"},
		{"mistral.mixtral-8x7b", "max_tokens"},
	}

	for _, tt := range tests {
		doc := shape(t, tt.modelID, basicTurns, Params{})
		if got := doc.Get(tt.path).Int(); got != defaultMaxTokens {
			t.Errorf("%s: %s = %d, want %d", tt.modelID, tt.path, got, defaultMaxTokens)
		}

		doc = shape(t, tt.modelID, basicTurns, Params{MaxTokens: intPtr(512)})
		if got := doc.Get(tt.path).Int(); got != 512 {
			t.Errorf("%s: %s = %d, want 512", tt.modelID, tt.path, got)
		}
	}
}

func TestShaperOptionalFieldsOmittedWhenUnset(t *testing.T) {
	tests := []struct {
		modelID  string
		tempPath string
		topPPath string
	}{
		{"anthropic.claude-3-opus", "temperature", "top_p"},
		{"amazon.titan-text-express-v1", "textGenerationConfig.temperature", "textGenerationConfig.topP"},
		{"cohere.command-r", "temperature", "p"},
		{"meta.llama3-8b", "temperature", "top_p"},
		{"mistral.mistral-large", "temperature", "top_p"},
	}

	for _, tt := range tests {
		doc := shape(t, tt.modelID, basicTurns, Params{})
		if doc.Get(tt.tempPath).Exists() {
			t.Errorf("%s: temperature present without being set", tt.modelID)
		}
		if doc.Get(tt.topPPath).Exists() {
			t.Errorf("%s: topP present without being set", tt.modelID)
		}

		doc = shape(t, tt.modelID, basicTurns, Params{Temperature: floatPtr(0.7), TopP: floatPtr(0.9)})
		if got := doc.Get(tt.tempPath).Float(); got != 0.7 {
			t.Errorf("%s: temperature = %v, want 0.7", tt.modelID, got)
		}
		if got := doc.Get(tt.topPPath).Float(); got != 0.9 {
			t.Errorf("%s: topP = %v, want 0.9", tt.modelID, got)
		}
	}
}

func TestShaperAnthropicSystemField(t *testing.T) {
	doc := shape(t, "anthropic.claude-3-sonnet", basicTurns, Params{SystemPrompt: "be brief"})
	if got := doc.Get("system").String(); got != "be brief" {
		t.Errorf("system = %q, want %q", got, "be brief")
	}
	if got := doc.Get("messages.#").Int(); got != 3 {
		t.Errorf("messages length = %d, want 3", got)
	}
	if got := doc.Get("messages.0.role").String(); got != "user" {
		t.Errorf("messages.0.role = %q, want user", got)
	}

	doc = shape(t, "anthropic.claude-3-sonnet", basicTurns, Params{})
	if doc.Get("system").Exists() {
		t.Error("system field present without a system prompt")
	}
}

func TestShaperTitanPrompt(t *testing.T) {
	doc := shape(t, "amazon.titan-text-express-v1", basicTurns, Params{SystemPrompt: "stay factual"})
	prompt := doc.Get("inputText").String()

	if !strings.HasPrefix(prompt, "System: stay factual\n\n") {
		t.Errorf("prompt missing system prefix: %q", prompt)
	}
	if !strings.Contains(prompt, "User: hello") {
		t.Errorf("prompt missing labeled user turn: %q", prompt)
	}
	if !strings.Contains(prompt, "Assistant: hi there") {
		t.Errorf("prompt missing labeled assistant turn: %q", prompt)
	}
	if !strings.HasSuffix(prompt, "\n\nAssistant:") {
		t.Errorf("prompt missing trailing assistant cue: %q", prompt)
	}
}

func TestShaperCoherePrompt(t *testing.T) {
	doc := shape(t, "cohere.command-text-v14", basicTurns, Params{SystemPrompt: "short answers"})
	prompt := doc.Get("inputText").String()

	if !strings.HasPrefix(prompt, "short answers\n\n") {
		t.Errorf("system prompt should be prepended plain, got %q", prompt)
	}
	if strings.Contains(prompt, "System:") {
		t.Errorf("cohere prompt must not label the system prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "Human: hello") {
		t.Errorf("prompt missing Human label: %q", prompt)
	}
	if !strings.Contains(prompt, "Assistant: hi there") {
		t.Errorf("prompt missing Assistant label: %q", prompt)
	}
}

func TestShaperMetaPromptHasNoLabels(t *testing.T) {
	doc := shape(t, "meta.llama3-8b", basicTurns, Params{SystemPrompt: "sys"})
	prompt := doc.Get("inputText").String()

	want := "sys\n\nhello\n\nhi there\n\nhow are you"
	if prompt != want {
		t.Errorf("prompt = %q, want %q", prompt, want)
	}
}

func TestShaperMistralSystemBlockOnce(t *testing.T) {
	doc := shape(t, "mistral.mistral-7b", []Message{{Role: RoleUser, Content: "A"}}, Params{SystemPrompt: "S"})
	prompt := doc.Get("inputText").String()

	if got := strings.Count(prompt, "<<SYS>>"); got != 1 {
		t.Errorf("system block opener count = %d, want 1: %q", got, prompt)
	}
	if got := strings.Count(prompt, "<</SYS>>"); got != 1 {
		t.Errorf("system block closer count = %d, want 1: %q", got, prompt)
	}
	if opens, closes := strings.Count(prompt, "[INST]"), strings.Count(prompt, "[/INST]"); opens != closes {
		t.Errorf("unbalanced delimiters: %d opens, %d closes: %q", opens, closes, prompt)
	}
	if !strings.HasSuffix(prompt, "[/INST]") {
		t.Errorf("user-final prompt should end ready for continuation: %q", prompt)
	}
}

func TestShaperMistralAssistantFinalAppendsOpener(t *testing.T) {
	turns := []Message{
		{Role: RoleUser, Content: "A"},
		{Role: RoleAssistant, Content: "B"},
	}
	doc := shape(t, "mistral.mistral-7b", turns, Params{})
	prompt := doc.Get("inputText").String()

	if !strings.HasSuffix(prompt, "[INST] ") {
		t.Errorf("assistant-final prompt should end with a fresh opener: %q", prompt)
	}
	if !strings.HasPrefix(prompt, "[INST] A [/INST] B") {
		t.Errorf("unexpected template layout: %q", prompt)
	}
}

func TestShaperStopSequences(t *testing.T) {
	p := Params{StopSequences: []string{"END"}}

	doc := shape(t, "anthropic.claude-3-sonnet", basicTurns, p)
	if got := doc.Get("stop_sequences.0").String(); got != "END" {
		t.Errorf("stop_sequences.0 = %q, want END", got)
	}

	doc = shape(t, "anthropic.claude-3-sonnet", basicTurns, Params{})
	if doc.Get("stop_sequences").Exists() {
		t.Error("stop_sequences present without being set")
	}
}
