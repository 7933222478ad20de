package task

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskdeck/internal/core"
)

// FileRunner performs local filesystem operations.
//
// Params: operation ∈ {copy, move, delete, backup} (required), source
// (required path), destination (required except for delete). backup
// writes a timestamped zip archive of the source into the destination
// directory. Cancellation is checked between files; a single large file
// copy is not interrupted mid-stream.
type FileRunner struct{}

var fileOps = map[string]bool{"copy": true, "move": true, "delete": true, "backup": true}

func (r *FileRunner) Validate(params map[string]any) error {
	op, err := requireString(params, "operation")
	if err != nil {
		return err
	}
	if !fileOps[op] {
		return fmt.Errorf("unsupported file operation %q", op)
	}
	if _, err := requireString(params, "source"); err != nil {
		return err
	}
	if op != "delete" {
		if _, err := requireString(params, "destination"); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileRunner) Run(ctx context.Context, t *core.Task, logf func(string, ...any)) core.RunResult {
	op, _ := stringParam(t.Params, "operation")
	source, _ := stringParam(t.Params, "source")
	dest, _ := stringParam(t.Params, "destination")

	if _, err := os.Stat(source); err != nil {
		return failure("source %q: %v", source, err)
	}

	logf("file %s %s", op, source)
	var (
		msg string
		err error
	)
	switch op {
	case "copy":
		msg, err = copyPath(ctx, source, dest)
	case "move":
		err = os.Rename(source, dest)
		if err != nil {
			// Rename fails across filesystems; fall back to copy+delete.
			if _, cerr := copyPath(ctx, source, dest); cerr == nil {
				err = os.RemoveAll(source)
			}
		}
		msg = fmt.Sprintf("moved %s to %s", source, dest)
	case "delete":
		err = os.RemoveAll(source)
		msg = fmt.Sprintf("deleted %s", source)
	case "backup":
		msg, err = backupArchive(ctx, source, dest)
	}

	if err != nil {
		if ctx.Err() != nil {
			return cancelled()
		}
		return failure("%s: %v", op, err)
	}
	return core.RunResult{Outcome: core.OutcomeSuccess, Output: msg}
}

func copyPath(ctx context.Context, source, dest string) (string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		if err := copyFile(source, dest, info.Mode()); err != nil {
			return "", err
		}
		return fmt.Sprintf("copied %s to %s", source, dest), nil
	}

	files := 0
	err = filepath.Walk(source, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if fi.IsDir() {
			return os.MkdirAll(target, fi.Mode())
		}
		files++
		return copyFile(path, target, fi.Mode())
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("copied %d files from %s to %s", files, source, dest), nil
}

func copyFile(source, dest string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// backupArchive zips the source into destDir with a timestamped name.
func backupArchive(ctx context.Context, source, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	archive := filepath.Join(destDir,
		fmt.Sprintf("%s_%s.zip", base, time.Now().UTC().Format("20060102_150405")))

	f, err := os.Create(archive)
	if err != nil {
		return "", err
	}
	defer f.Close()
	zw := zip.NewWriter(f)

	root := filepath.Dir(source)
	err = filepath.Walk(source, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(w, in)
		return err
	})
	if err != nil {
		zw.Close()
		os.Remove(archive)
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return fmt.Sprintf("archived %s to %s", source, archive), nil
}
