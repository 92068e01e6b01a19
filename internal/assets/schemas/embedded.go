// Package schemasassets provides embedded JSON schemas so validation works
// in installed binaries regardless of the working directory.
package schemasassets

import _ "embed"

// WatchManifestSchema is the embedded watch-manifest JSON schema.
//
//go:embed watch-manifest.schema.json
var WatchManifestSchema []byte
