// Package assets embeds the built web frontend. The dist directory is
// populated by the web build before compiling the server binary.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed dist
var embeddedAssets embed.FS

// GetEmbeddedAssets returns the embedded frontend filesystem with the "dist"
// prefix stripped. Returns nil when no assets are embedded.
func GetEmbeddedAssets() fs.FS {
	if _, err := embeddedAssets.ReadDir("dist"); err != nil {
		return nil
	}

	assets, err := fs.Sub(embeddedAssets, "dist")
	if err != nil {
		return nil
	}
	return assets
}

// HasEmbeddedAssets returns true if frontend assets are embedded
func HasEmbeddedAssets() bool {
	_, err := embeddedAssets.ReadDir("dist")
	return err == nil
}
