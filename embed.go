package memebattle

import (
	_ "embed"
)

// Embed the card catalogue manifest
//
//go:embed static/cards.json
var CardManifestJSON []byte
