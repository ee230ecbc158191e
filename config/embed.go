// Package config embeds the default configuration shipped with the server.
package config

import _ "embed"

// Default holds the built-in conf.yaml. It is loaded first so a partial
// user config only needs to override the keys it cares about.
//
//go:embed conf.yaml
var Default []byte
