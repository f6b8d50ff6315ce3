package ports

// FileSystem abstracts the file operations the diagnostics output path
// needs: writing dump files and managing dump directories.
type FileSystem interface {
	// WriteFile writes data to a file, creating parent directories as
	// needed.
	WriteFile(path string, data []byte) error

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string) error

	// RemoveAll deletes a directory tree. Used to clear stale dumps
	// from a previous run.
	RemoveAll(path string) error
}
