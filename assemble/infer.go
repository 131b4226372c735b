package assemble

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	inkling "github.com/greyfriar/inkling"
	"github.com/greyfriar/inkling/session"
)

// Fill-in-the-middle markers understood by the deepseek-coder family.
const (
	fimBegin = "<｜fim▁begin｜>"
	fimHole  = "<｜fim▁hole｜>"
	fimEnd   = "<｜fim▁end｜>"
)

var fimStop = []string{fimBegin, fimHole, fimEnd, "<|endoftext|>", "\n\n"}

// FailKind classifies an inference failure.
type FailKind int

const (
	FailTimeout FailKind = iota
	FailConnection
	FailServer
)

// Code returns the wire error code for this kind.
func (k FailKind) Code() string {
	switch k {
	case FailTimeout:
		return inkling.CodeTimeout
	case FailConnection:
		return inkling.CodeConnection
	default:
		return inkling.CodeServer
	}
}

// InferError is a classified inference failure, surfaced verbatim to the
// caller. The core never retries.
type InferError struct {
	Kind   FailKind
	Detail string
}

func (e *InferError) Error() string {
	switch e.Kind {
	case FailTimeout:
		return "inference timed out: " + e.Detail
	case FailConnection:
		return "cannot reach inference server: " + e.Detail
	default:
		return "inference server error: " + e.Detail
	}
}

// Payload is the transient value assembled per request. It is never
// persisted; it exists only for the duration of one inference call.
type Payload struct {
	Mode     inkling.Mode
	Preamble string
	History  []session.Turn
	Prompt   string // final user message; prefix text in complete mode
	Suffix   string // complete mode only
}

// Client performs the network call to the inference server. Any
// implementation satisfying this contract is acceptable; the concurrency
// strategy lives entirely in the host integration layer.
type Client interface {
	Send(ctx context.Context, p *Payload, model string) (string, error)
}

// OllamaClient talks to a locally running Ollama server. Chat modes use
// /api/chat with the payload's history; complete mode uses /api/generate
// with a raw FIM prompt (history does not apply to the raw endpoint).
type OllamaClient struct {
	baseURL     string
	maxTokens   int
	temperature float64
	stop        []string
	client      *http.Client
}

// NewOllamaClient creates a client for the given base URL. timeout is a
// transport-level backstop; per-request deadlines come in via ctx.
func NewOllamaClient(baseURL string, timeout time.Duration, maxTokens int, temperature float64, stop []string) *OllamaClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaClient{
		baseURL:     baseURL,
		maxTokens:   maxTokens,
		temperature: temperature,
		stop:        stop,
		client:      &http.Client{Timeout: timeout},
	}
}

// Send dispatches the payload to the endpoint appropriate for its mode.
func (o *OllamaClient) Send(ctx context.Context, p *Payload, model string) (string, error) {
	if p.Mode == inkling.ModeComplete {
		return o.sendGenerate(ctx, p, model)
	}
	return o.sendChat(ctx, p, model)
}

// --- /api/generate (FIM completion) ---

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Raw     bool            `json:"raw"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64  `json:"temperature"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (o *OllamaClient) sendGenerate(ctx context.Context, p *Payload, model string) (string, error) {
	reqBody := generateRequest{
		Model:  model,
		Prompt: fimBegin + p.Prompt + fimHole + p.Suffix + fimEnd,
		Stream: false,
		Raw:    true,
		Options: generateOptions{
			Temperature: 0,
			NumPredict:  50,
			Stop:        fimStop,
		},
	}

	body, err := o.post(ctx, "/api/generate", reqBody)
	if err != nil {
		return "", err
	}

	var result generateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &InferError{Kind: FailServer, Detail: fmt.Sprintf("unparseable response: %v", err)}
	}
	return result.Response, nil
}

// --- /api/chat (explain, generate) ---

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []chatMessage   `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  generateOptions `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

func (o *OllamaClient) sendChat(ctx context.Context, p *Payload, model string) (string, error) {
	messages := make([]chatMessage, 0, 2*len(p.History)+2)
	messages = append(messages, chatMessage{Role: "system", Content: p.Preamble})
	for _, turn := range p.History {
		messages = append(messages, chatMessage{Role: "user", Content: turn.Prompt})
		messages = append(messages, chatMessage{Role: "assistant", Content: turn.Response})
	}
	messages = append(messages, chatMessage{Role: "user", Content: p.Prompt})

	reqBody := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options: generateOptions{
			Temperature: o.temperature,
			NumPredict:  o.maxTokens,
			Stop:        o.stop,
		},
	}

	body, err := o.post(ctx, "/api/chat", reqBody)
	if err != nil {
		return "", err
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &InferError{Kind: FailServer, Detail: fmt.Sprintf("unparseable response: %v", err)}
	}
	return result.Message.Content, nil
}

// post sends a JSON request and returns the response body, classifying
// every failure as Timeout, ConnectionError, or ServerError.
func (o *OllamaClient) post(ctx context.Context, path string, reqBody any) ([]byte, error) {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode != 200 {
		return nil, &InferError{
			Kind:   FailServer,
			Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body)),
		}
	}
	return body, nil
}

// classifyTransport maps a transport error to an InferError. A context
// cancellation is passed through untouched so the caller can tell an
// explicit cancel from a failure.
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &InferError{Kind: FailTimeout, Detail: err.Error()}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &InferError{Kind: FailTimeout, Detail: err.Error()}
	}
	return &InferError{Kind: FailConnection, Detail: err.Error()}
}

// --- /api/tags ---

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the model names the inference server has available.
func (o *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}
	if resp.StatusCode != 200 {
		return nil, &InferError{
			Kind:   FailServer,
			Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body)),
		}
	}

	var result tagsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &InferError{Kind: FailServer, Detail: fmt.Sprintf("unparseable response: %v", err)}
	}

	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}
