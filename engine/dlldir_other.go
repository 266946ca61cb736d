//go:build !windows

package engine

// addLibraryDir is a no-op; the dynamic loader resolves dependencies through
// rpath or LD_LIBRARY_PATH.
func addLibraryDir(string) error { return nil }
