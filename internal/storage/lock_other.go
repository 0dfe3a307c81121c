//go:build !unix

package storage

// lockDir is a no-op where flock is unavailable; version checks then only
// hold within one process.
func lockDir(string) (func(), error) {
	return func() {}, nil
}
