// Package iodeps collects the small filesystem seams the planner and
// executor use to stage remote byte ranges into local temp files. Kept
// separate and minimal so both packages can inject fakes in tests without
// touching a real filesystem.
package iodeps

import "os"

// TempDirCreator creates temporary directories.
type TempDirCreator interface {
	MkdirTemp(dir, pattern string) (string, error)
}

// FileRemover removes files and directories.
type FileRemover interface {
	Remove(name string) error
	RemoveAll(path string) error
}

// FileCreator creates files for writing.
type FileCreator interface {
	Create(name string) (*os.File, error)
}

// OSTempDirCreator is the production TempDirCreator.
type OSTempDirCreator struct{}

func (OSTempDirCreator) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

// OSFileRemover is the production FileRemover.
type OSFileRemover struct{}

func (OSFileRemover) Remove(name string) error    { return os.Remove(name) }
func (OSFileRemover) RemoveAll(path string) error { return os.RemoveAll(path) }

// OSFileCreator is the production FileCreator.
type OSFileCreator struct{}

// Create opens name for writing, truncating it if it already exists.
func (OSFileCreator) Create(name string) (*os.File, error) {
	// #nosec G304 -- paths are always generated by MkdirTemp, not user input
	return os.Create(name)
}

var (
	_ TempDirCreator = OSTempDirCreator{}
	_ FileRemover    = OSFileRemover{}
	_ FileCreator    = OSFileCreator{}
)
