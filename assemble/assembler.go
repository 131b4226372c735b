// Package assemble builds the context for each inference call and owns
// the per-request decision: serve from cache, or call the inference
// server and commit the result. All session and cache mutation happens
// here, behind a single commit lock, so concurrent requests cannot
// interleave partial state.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"text/template"
	"time"

	inkling "github.com/greyfriar/inkling"
	"github.com/greyfriar/inkling/cache"
	defaults "github.com/greyfriar/inkling/default"
	"github.com/greyfriar/inkling/index"
	"github.com/greyfriar/inkling/session"
)

// commentMarkers are the prefixes accepted as a comment in generate mode.
var commentMarkers = []string{"#", "//", "--", ";", "/*"}

// ErrCancelled is returned when a request was abandoned by an explicit
// cancel before its result could be committed. The result is discarded;
// neither the session nor the cache sees it.
var ErrCancelled = errors.New("request cancelled")

// ValidationError rejects a request before any cache or network activity.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Options configures an Assembler.
type Options struct {
	Model         string
	Timeout       time.Duration
	HistoryWindow int
	RelatedTopK   int // related snippets attached in generate mode
}

// Result is a successful assist outcome.
type Result struct {
	Text      string
	FromCache bool
}

// Assembler wires the session store, the disk cache, the snippet index
// and an inference client into the per-request flow.
type Assembler struct {
	client    Client
	store     *session.Store
	cache     *cache.Disk
	idx       *index.Index
	opts      Options
	preambles map[inkling.Mode]*template.Template

	// commitMu serializes the commit step (session append + cache store)
	// across concurrent requests.
	commitMu sync.Mutex
}

// New creates an Assembler. idx may be the zero-value disabled index.
func New(client Client, store *session.Store, disk *cache.Disk, idx *index.Index, opts Options) *Assembler {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 5
	}
	if opts.RelatedTopK <= 0 {
		opts.RelatedTopK = 3
	}
	return &Assembler{
		client: client,
		store:  store,
		cache:  disk,
		idx:    idx,
		opts:   opts,
		preambles: map[inkling.Mode]*template.Template{
			inkling.ModeComplete: loadPreamble(inkling.ModeComplete, defaults.PreambleComplete),
			inkling.ModeExplain:  loadPreamble(inkling.ModeExplain, defaults.PreambleExplain),
			inkling.ModeGenerate: loadPreamble(inkling.ModeGenerate, defaults.PreambleGenerate),
		},
	}
}

// loadPreamble prefers a user override file in the config directory and
// falls back to the embedded default. A broken override is skipped, not
// fatal.
func loadPreamble(mode inkling.Mode, fallback string) *template.Template {
	name := string(mode)
	if data, err := os.ReadFile(inkling.PreamblePath(mode)); err == nil {
		if tmpl, err := template.New(name).Parse(string(data)); err == nil {
			return tmpl
		}
		slog.Warn("ignoring unparseable preamble override", "mode", mode)
	}
	return template.Must(template.New(name).Parse(fallback))
}

// Assist runs one request through the full flow: validate, consult the
// cache, assemble context, call the inference server, commit. Failures
// leave the session and cache exactly as they were.
func (a *Assembler) Assist(ctx context.Context, req *inkling.Request) (*Result, error) {
	if !req.Mode.Valid() {
		return nil, &ValidationError{
			Code:    inkling.CodeInvalidRequest,
			Message: fmt.Sprintf("unknown mode %q", req.Mode),
		}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, &ValidationError{
			Code:    inkling.CodeEmptyPrompt,
			Message: "prompt is empty",
		}
	}
	if req.Mode == inkling.ModeGenerate && !HasCommentMarker(req.Prompt) {
		return nil, &ValidationError{
			Code:    inkling.CodeNotAComment,
			Message: "generate mode expects a comment line",
		}
	}

	key := cache.NewKey(a.opts.Model, req.Mode, req.Prompt, req.Suffix)
	if entry, ok := a.cache.Lookup(key, a.opts.Model, req.Mode); ok {
		slog.Debug("cache hit", "mode", req.Mode, "key", key)
		a.commit(req, entry.Response, key, false)
		return &Result{Text: entry.Response, FromCache: true}, nil
	}

	payload := a.buildPayload(req)

	cctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	raw, err := a.client.Send(cctx, payload, a.opts.Model)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, ErrCancelled
		}
		return nil, err
	}

	text := a.postprocess(req, raw)
	if text == "" {
		return nil, &InferError{Kind: FailServer, Detail: "empty response from model"}
	}

	// A cancel that landed while inference was in flight discards the
	// late result before it can touch any state.
	if ctx.Err() != nil {
		slog.Debug("discarding result of cancelled request", "mode", req.Mode, "key", key)
		return nil, ErrCancelled
	}

	a.commit(req, text, key, true)
	return &Result{Text: text}, nil
}

// commit appends the turn and, for fresh results, stores the response and
// feeds the snippet index. Persistence failures are logged and the turn
// stands; prior state is never rolled back.
func (a *Assembler) commit(req *inkling.Request, text string, key cache.Key, fresh bool) {
	a.commitMu.Lock()
	defer a.commitMu.Unlock()

	a.store.Append(session.Turn{
		Prompt:    req.Prompt,
		Response:  text,
		Mode:      req.Mode,
		Timestamp: time.Now(),
	})

	if !fresh {
		return
	}
	if err := a.cache.Store(key, text, a.opts.Model, req.Mode); err != nil {
		slog.Warn("cache store failed", "key", key, "error", err)
	}
	if req.Mode == inkling.ModeGenerate && a.idx.Enabled() {
		if err := a.idx.Add(string(key), req.Prompt); err != nil {
			slog.Debug("snippet index add failed", "error", err)
		}
	}
}

// postprocess cleans the raw model output for the request's mode.
func (a *Assembler) postprocess(req *inkling.Request, raw string) string {
	switch req.Mode {
	case inkling.ModeComplete:
		return CleanCompletion(raw, lastLine(req.Prompt))
	case inkling.ModeGenerate:
		return ExtractCode(raw)
	default:
		return strings.TrimSpace(raw)
	}
}

// buildPayload assembles the transient context for one inference call.
func (a *Assembler) buildPayload(req *inkling.Request) *Payload {
	lang := req.Filetype
	if lang == "" {
		lang = "code"
	}

	p := &Payload{
		Mode:     req.Mode,
		Preamble: a.renderPreamble(req.Mode, lang),
		History:  a.store.History(a.opts.HistoryWindow),
	}

	switch req.Mode {
	case inkling.ModeComplete:
		p.Prompt = req.Prompt
		p.Suffix = req.Suffix
	case inkling.ModeExplain:
		p.Prompt = explainMessage(req.Prompt, lang)
	case inkling.ModeGenerate:
		p.Prompt = a.generateMessage(req, p.History, lang)
	}
	return p
}

func (a *Assembler) renderPreamble(mode inkling.Mode, lang string) string {
	var sb strings.Builder
	if err := a.preambles[mode].Execute(&sb, struct{ Language string }{lang}); err != nil {
		slog.Warn("preamble render failed", "mode", mode, "error", err)
		return ""
	}
	return sb.String()
}

func explainMessage(code, lang string) string {
	return fmt.Sprintf("Explain this %s code step by step:\n\n```%s\n%s\n```", lang, lang, code)
}

// generateMessage builds the user message for generate mode: the buffer
// for context, snippets from recent turns and from the similarity index
// so the model does not repeat them, then the instruction itself.
func (a *Assembler) generateMessage(req *inkling.Request, history []session.Turn, lang string) string {
	description := TrimCommentMarker(req.Prompt)

	var sb strings.Builder
	if req.Buffer != "" {
		fmt.Fprintf(&sb, "Given this %s file:\n\n```%s\n%s\n```\n\n", lang, lang, req.Buffer)
	}

	known := a.knownSnippets(history, req.Prompt)
	if len(known) > 0 {
		sb.WriteString("These snippets were generated earlier and are already available; do not repeat them:\n\n")
		for _, s := range known {
			fmt.Fprintf(&sb, "```%s\n%s\n```\n\n", lang, s)
		}
	}

	fmt.Fprintf(&sb, "Write ONLY executable %s code to: %s.", lang, description)
	return sb.String()
}

// knownSnippets collects generated snippets the model should not repeat:
// generate responses from the recent history, plus cached snippets whose
// prompts the index considers similar. Index failures degrade to history
// only.
func (a *Assembler) knownSnippets(history []session.Turn, prompt string) []string {
	const maxSnippet = 600

	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		if len(s) > maxSnippet {
			s = s[:maxSnippet]
		}
		seen[s] = true
		out = append(out, s)
	}

	for i := len(history) - 1; i >= 0 && len(out) < 3; i-- {
		if history[i].Mode == inkling.ModeGenerate {
			add(history[i].Response)
		}
	}

	if a.idx.Enabled() {
		keys, err := a.idx.Search(TrimCommentMarker(prompt), a.opts.RelatedTopK)
		if err != nil {
			slog.Debug("snippet index search failed", "error", err)
		}
		for _, k := range keys {
			if entry, ok := a.cache.Lookup(cache.Key(k), a.opts.Model, inkling.ModeGenerate); ok {
				add(entry.Response)
			}
		}
	}
	return out
}

// HasCommentMarker reports whether the prompt's first line starts with a
// recognized comment marker.
func HasCommentMarker(prompt string) bool {
	line := strings.TrimSpace(firstLine(prompt))
	for _, m := range commentMarkers {
		if strings.HasPrefix(line, m) {
			return true
		}
	}
	return false
}

// TrimCommentMarker strips the comment marker (and a trailing block-
// comment close) from the prompt's first line, leaving the description.
func TrimCommentMarker(prompt string) string {
	line := strings.TrimSpace(firstLine(prompt))
	for _, m := range commentMarkers {
		if strings.HasPrefix(line, m) {
			line = strings.TrimPrefix(line, m)
			break
		}
	}
	line = strings.TrimSuffix(strings.TrimSpace(line), "*/")
	return strings.TrimSpace(line)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
