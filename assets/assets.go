// Package assets provides access to the embedded landing page and its static files.
package assets

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed index.html favicon.svg
var embedFS embed.FS

// GetFileSystem returns an http.FileSystem interface for the embedded assets,
// rooted at the current directory of the embed.FS.
func GetFileSystem() http.FileSystem {
	fsys, err := fs.Sub(embedFS, ".")
	if err != nil {
		panic(err)
	}
	return http.FS(fsys)
}

// ReadFile returns the content of a specific file from the embedded assets by its name.
func ReadFile(name string) ([]byte, error) {
	return embedFS.ReadFile(name)
}
