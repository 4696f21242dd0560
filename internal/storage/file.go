package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/plc-visualizer/plcforge/internal/faults"
)

// ReadFile reads path, refusing files larger than limit bytes. A zero limit
// reads without bound.
func ReadFile(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil && limit > 0 && fi.Size() > limit {
		return nil, faults.ResourceLimitExceeded("input bytes of "+filepath.Base(path), limit)
	}
	return ReadAll(f, limit, filepath.Base(path))
}

// ReadAll reads r, failing once more than limit bytes arrive.
func ReadAll(r io.Reader, limit int64, what string) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, faults.ResourceLimitExceeded("input bytes of "+what, limit)
	}
	return data, nil
}

// WriteFile writes data to path through a temporary file in the same
// directory, so readers never observe a partial file.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	_, err := writeAtomic(path, perm, func(w io.Writer) (int64, error) {
		n, err := w.Write(data)
		return int64(n), err
	})
	return err
}

func writeAtomic(path string, perm os.FileMode, fill func(io.Writer) (int64, error)) (int64, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, fmt.Errorf("creating temporary file: %w", err)
	}
	name := tmp.Name()
	defer os.Remove(name) // no-op after a successful rename

	n, err := fill(tmp)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(name, perm); err != nil {
		return 0, fmt.Errorf("setting mode of %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	return n, nil
}

func copyBounded(w io.Writer, r io.Reader, limit int64, what string) (int64, error) {
	if limit <= 0 {
		return io.Copy(w, r)
	}
	n, err := io.Copy(w, io.LimitReader(r, limit+1))
	if err != nil {
		return n, fmt.Errorf("writing artifact: %w", err)
	}
	if n > limit {
		return n, faults.ResourceLimitExceeded("input bytes of "+what, limit)
	}
	return n, nil
}
