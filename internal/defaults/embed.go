// Package defaults embeds the default applekraken.yml written by
// "applekraken init".
package defaults

import _ "embed"

// FileName is the name init writes the config under.
const FileName = "applekraken.yml"

// Config is the default configuration file.
//
//go:embed applekraken.yml
var Config []byte
