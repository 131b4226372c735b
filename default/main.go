// Package defaults provides embedded default assets (preamble templates
// and config).
package defaults

import _ "embed"

//go:embed preamble_complete.md
var PreambleComplete string

//go:embed preamble_explain.md
var PreambleExplain string

//go:embed preamble_generate.md
var PreambleGenerate string

//go:embed default_config.toml
var DefaultConfigTOML []byte
