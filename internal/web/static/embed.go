// Package static embeds the selfie scan page served to event guests.
package static

import (
	"embed"
	"io/fs"
)

//go:embed all:dist/*
var distFS embed.FS

// FS returns the embedded dist directory as the root filesystem.
func FS() fs.FS {
	fsys, err := fs.Sub(distFS, "dist")
	if err != nil {
		// dist is embedded at build time.
		panic(err)
	}
	return fsys
}

// Index returns the scan page.
func Index() ([]byte, error) {
	return fs.ReadFile(distFS, "dist/index.html")
}
