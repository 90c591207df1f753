package executor

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// ModifiedFile is the pre-batch state of one touched file.
type ModifiedFile struct {
	Path     string
	Original []byte
	Existed  bool
}

// tracker records pre-mutation snapshots and the bytes last written, for
// rollback and verification.
type tracker struct {
	files   []*ModifiedFile
	byPath  map[string]*ModifiedFile
	written map[string][]byte
}

func newTracker() *tracker {
	return &tracker{
		byPath:  make(map[string]*ModifiedFile),
		written: make(map[string][]byte),
	}
}

// snapshot records path's current content the first time it is seen.
func (t *tracker) snapshot(path string) error {
	if _, ok := t.byPath[path]; ok {
		return nil
	}
	data, err := os.ReadFile(path)
	mf := &ModifiedFile{Path: path}
	switch {
	case err == nil:
		mf.Original = data
		mf.Existed = true
	case errors.Is(err, fs.ErrNotExist):
	default:
		return writeErr(PhaseRead, path, err)
	}
	t.files = append(t.files, mf)
	t.byPath[path] = mf
	return nil
}

// write snapshots path, then writes data atomically.
func (t *tracker) write(path string, data []byte) error {
	if err := t.snapshot(path); err != nil {
		return err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	t.written[path] = data
	return nil
}

// paths lists written files in first-touch order.
func (t *tracker) paths() []string {
	out := make([]string, 0, len(t.written))
	for _, mf := range t.files {
		if _, ok := t.written[mf.Path]; ok {
			out = append(out, mf.Path)
		}
	}
	return out
}

// verify re-reads every written file and compares it with what was written.
// JSON files must also parse.
func (t *tracker) verify() error {
	for _, path := range t.paths() {
		data, err := os.ReadFile(path)
		if err != nil {
			return writeErr(PhaseVerify, path, err)
		}
		if !bytes.Equal(data, t.written[path]) {
			return writeErr(PhaseVerify, path, errors.New("content differs from what was written"))
		}
		if filepath.Ext(path) == ".json" {
			if err := validateJSON(data); err != nil {
				return writeErr(PhaseVerify, path, err)
			}
		}
	}
	return nil
}

// rollback restores every snapshot in reverse order, removing files that
// did not exist before the batch.
func (t *tracker) rollback() []error {
	var errs []error
	for i := len(t.files) - 1; i >= 0; i-- {
		mf := t.files[i]
		if _, ok := t.written[mf.Path]; !ok {
			continue
		}
		if !mf.Existed {
			if err := os.Remove(mf.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if err := writeFileAtomic(mf.Path, mf.Original); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// writeFileAtomic writes data through a temp file and rename, keeping the
// existing file mode.
func writeFileAtomic(path string, data []byte) error {
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return writeErr(PhaseWrite, path, err)
	}

	tmp := path + ".autopatch.tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return writeErr(PhaseWrite, path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return writeErr(PhaseWrite, path, err)
	}
	return nil
}
