//go:build !ui

package ui

import "io/fs"

// DistFS returns nil without the ui build tag; the server then serves the
// API only.
func DistFS() (fs.FS, error) {
	return nil, nil
}
