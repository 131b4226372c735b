// Package inkling defines the request/response types for the inkling IPC
// protocol. Messages are JSON-encoded and sent over a Unix domain socket,
// one per line. The editor plugin is the client; inklingd is the server.
package inkling

import "time"

// Mode selects which kind of assistance a request asks for.
type Mode string

const (
	// ModeComplete continues code at the cursor (fill-in-the-middle).
	ModeComplete Mode = "complete"
	// ModeExplain explains the selected code in plain language.
	ModeExplain Mode = "explain"
	// ModeGenerate generates a snippet from a comment description.
	ModeGenerate Mode = "generate"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeComplete, ModeExplain, ModeGenerate:
		return true
	}
	return false
}

// Error codes returned in Error.Code.
const (
	// Validation failures, rejected before any cache or network activity.
	CodeEmptyPrompt    = "empty_prompt"
	CodeNotAComment    = "not_a_comment"
	CodeInvalidRequest = "invalid_request"

	// Network failures, surfaced verbatim from the inference call.
	CodeTimeout    = "timeout"
	CodeConnection = "connection_error"
	CodeServer     = "server_error"

	// The request was abandoned by an explicit cancel message.
	CodeCancelled = "cancelled"
)

// Request asks the daemon for a completion, explanation, or snippet.
// It carries no "type" field; all other message kinds do.
type Request struct {
	// RequestID is a per-session incrementing identifier assigned by the
	// editor client. The daemon echoes it back for ordering and so that a
	// cancel message can name an in-flight request.
	RequestID int `json:"request_id"`
	// SessionID identifies the editor session.
	SessionID string `json:"session_id"`
	// Mode is one of "complete", "explain", "generate".
	Mode Mode `json:"mode"`
	// Prompt is the raw input: text before the cursor for complete mode,
	// the selection for explain mode, a comment line for generate mode.
	Prompt string `json:"prompt"`
	// Suffix is the text after the cursor. Complete mode only.
	Suffix string `json:"suffix,omitempty"`
	// Buffer is the full buffer content. Generate mode includes it in the
	// outbound prompt so the model sees the surrounding file.
	Buffer string `json:"buffer,omitempty"`
	// Filetype is the editor's filetype (e.g. "python", "go"). Optional;
	// used to phrase the system preamble and code fences.
	Filetype string `json:"filetype,omitempty"`
}

// Response carries the assistant's answer back to the editor.
type Response struct {
	// RequestID is echoed from the request.
	RequestID int `json:"request_id"`
	// Text is the completion, explanation, or generated snippet.
	Text string `json:"text"`
	// FromCache is true when Text was served from the snippet cache
	// without an inference call.
	FromCache bool `json:"from_cache,omitempty"`
	// Error is set when the daemon cannot fulfill the request.
	Error *Error `json:"error,omitempty"`
}

// Error describes a daemon-side failure returned to the editor client.
type Error struct {
	// Code is a machine-readable error identifier (e.g. "empty_prompt",
	// "timeout").
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// CancelRequest abandons an in-flight request. Type is always "cancel".
// The named request's context is cancelled and its result, if it later
// arrives, is discarded instead of being committed to the session.
type CancelRequest struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	RequestID int    `json:"request_id"`
}

// CommandRequest invokes a daemon-side command. Type is always "command".
type CommandRequest struct {
	Type string `json:"type"`
	// Action is one of "clear_history", "clear_all", "show_context",
	// "list_models".
	Action string `json:"action"`
}

// CommandResponse answers a CommandRequest.
type CommandResponse struct {
	OK bool `json:"ok"`
	// Models is set for the "list_models" action.
	Models []string `json:"models,omitempty"`
	// Context is set for the "show_context" action.
	Context *ContextDump `json:"context,omitempty"`
	// Error is set when the command fails.
	Error *Error `json:"error,omitempty"`
}

// ContextDump is a read-only snapshot of the session and cache state.
type ContextDump struct {
	// Turns lists the session turns in chronological order, truncated for
	// display.
	Turns []TurnSummary `json:"turns"`
	// CacheKeys lists the most recently written cache keys, newest first.
	CacheKeys []string `json:"cache_keys"`
	// CacheEntries is the number of persisted cache entries.
	CacheEntries int `json:"cache_entries"`
}

// TurnSummary is one session turn prepared for display.
type TurnSummary struct {
	Mode      Mode      `json:"mode"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// ConfigRequest is sent for configuration operations. Type is always
// "config".
type ConfigRequest struct {
	Type string `json:"type"`
	// Action is the config operation: "get", "reload", or "defaults".
	Action string `json:"action"`
}

// ConfigResponse answers a ConfigRequest.
type ConfigResponse struct {
	Config *Config `json:"config,omitempty"`
	Error  *Error  `json:"error,omitempty"`
}
