package render

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/netreplica/nrx/pkg/util"
)

// Writer persists rendered artifacts. Names are slash-separated and
// relative to the writer's root.
type Writer interface {
	WriteFile(name string, data []byte) error
}

// DirWriter writes artifacts under Root, creating directories as needed.
type DirWriter struct {
	Root string
}

// Path returns the on-disk path for name.
func (w DirWriter) Path(name string) string {
	return filepath.Join(w.Root, filepath.FromSlash(name))
}

// WriteFile implements Writer.
func (w DirWriter) WriteFile(name string, data []byte) error {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return &util.OutputError{Path: name, Err: errors.New("path escapes output directory")}
	}
	p := w.Path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return &util.OutputError{Path: p, Err: err}
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return &util.OutputError{Path: p, Err: err}
	}
	return nil
}
