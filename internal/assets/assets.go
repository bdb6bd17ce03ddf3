// Package assets embeds files shipped inside the binary.
package assets

import "embed"

// DefaultConfigName is the file written by "config init".
const DefaultConfigName = "psi-proxy.yaml"

// Defaults holds defaults/psi-proxy.yaml.
//
//go:embed defaults
var Defaults embed.FS

// DefaultConfigPath is the path of the default config inside Defaults.
const DefaultConfigPath = "defaults/" + DefaultConfigName
