// Package ffmpeg locates and runs the external audio tool the silence
// probe depends on. The pipeline treats ffmpeg as a deployment
// prerequisite: it is resolved from an explicit override or the PATH,
// never downloaded.
package ffmpeg

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// EnvPath overrides binary resolution when set, for deployments that
// install ffmpeg outside the PATH.
const EnvPath = "STREAMSCRIBE_FFMPEG"

// ErrNotFound means no usable ffmpeg binary could be located.
var ErrNotFound = errors.New("ffmpeg: binary not found")

// ErrExitTimeout means ffmpeg ignored a quit request and had to be killed.
var ErrExitTimeout = errors.New("ffmpeg: did not exit after quit request")

// Resolver locates the ffmpeg binary. The seams exist so tests can run
// without ffmpeg installed.
type Resolver struct {
	getenv   func(string) string
	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithGetenv overrides environment lookup.
func WithGetenv(fn func(string) string) ResolverOption {
	return func(r *Resolver) { r.getenv = fn }
}

// WithLookPath overrides PATH lookup.
func WithLookPath(fn func(string) (string, error)) ResolverOption {
	return func(r *Resolver) { r.lookPath = fn }
}

// WithStat overrides file stat.
func WithStat(fn func(string) (os.FileInfo, error)) ResolverOption {
	return func(r *Resolver) { r.stat = fn }
}

// NewResolver builds a Resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		getenv:   os.Getenv,
		lookPath: exec.LookPath,
		stat:     os.Stat,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the path of the ffmpeg binary to run: the EnvPath
// override when set (and pointing at an existing file), otherwise the
// first "ffmpeg" on the PATH.
func (r *Resolver) Resolve() (string, error) {
	if override := strings.TrimSpace(r.getenv(EnvPath)); override != "" {
		info, err := r.stat(override)
		if err != nil {
			return "", fmt.Errorf("%w: %s points at %s: %v", ErrNotFound, EnvPath, override, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("%w: %s points at a directory: %s", ErrNotFound, EnvPath, override)
		}
		return override, nil
	}

	path, err := r.lookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("%w: not on PATH (install ffmpeg or set %s)", ErrNotFound, EnvPath)
	}
	return path, nil
}

// Resolve locates ffmpeg using the production Resolver.
func Resolve() (string, error) {
	return NewResolver().Resolve()
}
