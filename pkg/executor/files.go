package executor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/harun/serverwitch/pkg/action"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const defaultFileMode fs.FileMode = 0644

func (e *Executor) readFile(path string) action.Outcome {
	data, err := os.ReadFile(path)
	if err != nil {
		e.logger.Debug().Err(err).Str("path", path).Msg("Read failed")
		return action.Failure(describeIOError(err))
	}
	if data == nil {
		data = []byte{}
	}
	return action.Outcome{Success: true, Content: data}
}

func (e *Executor) writeFile(path string, content []byte) action.Outcome {
	var err error
	if e.cfg.AtomicWrites {
		err = writeFileAtomic(path, content)
	} else {
		err = os.WriteFile(path, content, defaultFileMode)
	}
	if err != nil {
		e.logger.Debug().Err(err).Str("path", path).Msg("Write failed")
		return action.Failure(describeIOError(err))
	}

	e.logger.Debug().Str("path", path).Int("bytes", len(content)).Msg("File written")
	return action.Outcome{Success: true}
}

// writeFileAtomic writes content next to path and renames it into place, so
// readers see either the old or the new file. An existing file keeps its mode.
func writeFileAtomic(path string, content []byte) error {
	mode := defaultFileMode
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return &fs.PathError{Op: "open", Path: path, Err: syscall.EISDIR}
		}
		mode = info.Mode().Perm()
	}

	suffix, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate temp name: %w", err)
	}
	dir, base := filepath.Split(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, suffix))

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// describeIOError renders a filesystem error the way it is reported to the
// relay: the OS reason without the operation and path prefix.
func describeIOError(err error) string {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return "permission denied"
	case errors.Is(err, fs.ErrNotExist):
		return "no such file or directory"
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err.Error()
	}
	return err.Error()
}
