package gateway

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of the conversation handed to a gateway call.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Params are the optional generation knobs. Nil means the backend default
// applies; only MaxTokens is ever defaulted, to 4096, because every family
// requires the field.
type Params struct {
	SystemPrompt  string
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
	StopSequences []string
}

// Request is the immutable input to one streaming call.
type Request struct {
	RequestID string
	ModelID   string
	Messages  []Message
	Params    Params
}

// ChunkType discriminates the normalized stream output units.
type ChunkType string

const (
	// ChunkTypeContent carries a text fragment.
	ChunkTypeContent ChunkType = "content"
	// ChunkTypeError carries a normalized failure and terminates the stream.
	ChunkTypeError ChunkType = "error"
	// ChunkTypeDone marks a clean end of stream.
	ChunkTypeDone ChunkType = "done"
)

// StreamChunk is one normalized output unit. A call yields zero or more
// content chunks followed by exactly one terminal chunk (error or done),
// never content after an error.
type StreamChunk struct {
	Type ChunkType `json:"type"`
	Text string    `json:"text,omitempty"`
	Err  *Error    `json:"error,omitempty"`
}

func contentChunk(text string) StreamChunk {
	return StreamChunk{Type: ChunkTypeContent, Text: text}
}

func errorChunk(e *Error) StreamChunk {
	return StreamChunk{Type: ChunkTypeError, Err: e}
}

func doneChunk() StreamChunk {
	return StreamChunk{Type: ChunkTypeDone}
}
