package index

import "regexp"

// safeVars are environment variables that are non-sensitive and commonly
// referenced in code samples.
var safeVars = map[string]bool{
	"HOME": true, "USER": true, "PWD": true, "OLDPWD": true,
	"SHELL": true, "PATH": true, "LANG": true, "TERM": true,
	"EDITOR": true, "PAGER": true, "HOSTNAME": true, "LOGNAME": true,
	"TMPDIR": true, "XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true,
	"XDG_CACHE_HOME": true, "COLUMNS": true, "LINES": true,
}

var (
	reBraceVar  = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	reSimpleVar = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	reAssign    = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*(?:_KEY|_TOKEN|_SECRET|_PASSWORD|PASSWORD|SECRET|TOKEN|APIKEY))\s*=\s*(\S+)`)
)

// Redact masks environment variable references and secret-looking
// assignments before text is embedded or persisted in the snippet index.
// Safe variables (PATH, HOME, etc.) are preserved.
func Redact(text string) string {
	// ${VAR} → ${REDACTED}
	text = reBraceVar.ReplaceAllStringFunc(text, func(m string) string {
		name := reBraceVar.FindStringSubmatch(m)[1]
		if safeVars[name] {
			return m
		}
		return "${REDACTED}"
	})

	// $VAR → $REDACTED
	text = reSimpleVar.ReplaceAllStringFunc(text, func(m string) string {
		name := reSimpleVar.FindStringSubmatch(m)[1]
		if name == "REDACTED" { // already redacted by brace pass
			return m
		}
		if safeVars[name] {
			return m
		}
		return "$REDACTED"
	})

	// API_KEY=value → API_KEY=***
	text = reAssign.ReplaceAllStringFunc(text, func(m string) string {
		parts := reAssign.FindStringSubmatch(m)
		return parts[1] + "=***"
	})

	return text
}
