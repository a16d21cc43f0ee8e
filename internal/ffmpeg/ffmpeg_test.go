package ffmpeg

import (
	"errors"
	"io/fs"
	"os"
	"testing"
)

type fakeFileInfo struct {
	os.FileInfo
	dir bool
}

func (f fakeFileInfo) IsDir() bool { return f.dir }

func TestResolvePrefersEnvOverride(t *testing.T) {
	t.Parallel()

	r := NewResolver(
		WithGetenv(func(key string) string {
			if key == EnvPath {
				return "/opt/ffmpeg/bin/ffmpeg"
			}
			return ""
		}),
		WithStat(func(string) (os.FileInfo, error) { return fakeFileInfo{}, nil }),
		WithLookPath(func(string) (string, error) {
			t.Fatal("PATH lookup must not run when the override is set")
			return "", nil
		}),
	)

	path, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("path = %q", path)
	}
}

func TestResolveRejectsBrokenOverride(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		stat func(string) (os.FileInfo, error)
	}{
		{"missing file", func(string) (os.FileInfo, error) { return nil, fs.ErrNotExist }},
		{"directory", func(string) (os.FileInfo, error) { return fakeFileInfo{dir: true}, nil }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := NewResolver(
				WithGetenv(func(string) string { return "/nope" }),
				WithStat(tc.stat),
			)
			if _, err := r.Resolve(); !errors.Is(err, ErrNotFound) {
				t.Fatalf("error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestResolveFallsBackToPath(t *testing.T) {
	t.Parallel()

	r := NewResolver(
		WithGetenv(func(string) string { return "" }),
		WithLookPath(func(name string) (string, error) {
			if name != "ffmpeg" {
				t.Errorf("looked up %q", name)
			}
			return "/usr/bin/ffmpeg", nil
		}),
	)

	path, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != "/usr/bin/ffmpeg" {
		t.Errorf("path = %q", path)
	}
}

func TestResolveNotOnPath(t *testing.T) {
	t.Parallel()

	r := NewResolver(
		WithGetenv(func(string) string { return "" }),
		WithLookPath(func(string) (string, error) { return "", errors.New("not found") }),
	)
	if _, err := r.Resolve(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
