package assemble

import (
	"regexp"
	"strings"
)

var (
	reFenceOpen   = regexp.MustCompile("```[a-zA-Z0-9]*")
	reLeadingJunk = regexp.MustCompile("^[\"'`,\\s]+")

	// first fenced code block, tolerating a missing closing fence
	reFencedBlock = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\n(.*?)```")
	reOpenFence   = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\n(.*)")
)

// CleanCompletion strips model artifacts from an inline completion and
// reduces it to a single insertable line. lineBeforeCursor is the text on
// the current line up to the cursor; models often echo it back.
func CleanCompletion(completion, lineBeforeCursor string) string {
	for _, tok := range fimStop[:4] {
		completion = strings.ReplaceAll(completion, tok, "")
	}
	completion = reFenceOpen.ReplaceAllString(completion, "")
	completion = strings.TrimSpace(completion)

	if cur := strings.TrimSpace(lineBeforeCursor); cur != "" && strings.HasPrefix(completion, cur) {
		completion = strings.TrimSpace(completion[len(cur):])
	}

	completion = reLeadingJunk.ReplaceAllString(completion, "")

	if i := strings.IndexByte(completion, '\n'); i >= 0 {
		completion = completion[:i]
	}
	return strings.TrimSpace(completion)
}

// ExtractCode pulls the code out of a chat response. If the response has
// a fenced block the block's contents win; otherwise the whole response
// is assumed to be code.
func ExtractCode(content string) string {
	if m := reFencedBlock.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := reOpenFence.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(content)
}

// FilterNewLines filters generated code line by line before insertion:
// fences are dropped, prose the model slipped in is dropped, and lines
// already present in the buffer are dropped so regenerating a snippet
// does not duplicate code.
func FilterNewLines(generated string, buffer []string) []string {
	existing := make(map[string]bool, len(buffer))
	for _, line := range buffer {
		if s := strings.TrimSpace(line); s != "" {
			existing[s] = true
		}
	}

	var out []string
	for _, line := range strings.Split(generated, "\n") {
		s := strings.TrimSpace(line)
		if s == "" {
			out = append(out, "")
			continue
		}
		if strings.HasPrefix(s, "```") {
			continue
		}
		if looksLikeProse(s) {
			continue
		}
		if existing[s] {
			continue
		}
		out = append(out, line)
	}

	// collapse a leading/trailing run of blanks left by the filtering
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// looksLikeProse reports whether a trimmed line reads like explanation
// text rather than code. Comments are never prose.
func looksLikeProse(s string) bool {
	for _, marker := range commentMarkers {
		if strings.HasPrefix(s, marker) {
			return false
		}
	}
	if strings.ContainsAny(s, "=()[]{}:;") {
		return false
	}
	words := strings.Fields(s)
	if len(words) < 4 {
		return false
	}
	first := rune(s[0])
	if first < 'A' || first > 'Z' {
		return false
	}
	return strings.HasSuffix(s, ".") || len(words) >= 6
}
