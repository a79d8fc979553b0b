package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ConvertFunc transcodes in to out.
type ConvertFunc func(ctx context.Context, in, out string) error

// FileArchiver keeps session audio in Dir when Keep is set and deletes it
// otherwise. With Convert set, kept audio is transcoded to Ext first.
type FileArchiver struct {
	Dir     string
	Keep    bool
	Ext     string
	Convert ConvertFunc
}

// Archive returns the archived path, or "" when the audio was discarded.
func (a *FileArchiver) Archive(ctx context.Context, audioPath, id string) (string, error) {
	if !a.Keep {
		if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
			return "", err
		}
		return "", nil
	}
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", err
	}

	ext := a.Ext
	if ext == "" || a.Convert == nil {
		ext = filepath.Ext(audioPath)
	} else {
		ext = "." + ext
	}
	dest := filepath.Join(a.Dir, fmt.Sprintf("recording_%s%s", id, ext))

	if a.Convert != nil {
		if err := a.Convert(ctx, audioPath, dest); err != nil {
			return "", fmt.Errorf("convert %s: %w", filepath.Base(audioPath), err)
		}
		os.Remove(audioPath)
		return dest, nil
	}
	if err := moveFile(audioPath, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// moveFile renames, falling back to copy+remove across filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(src)
}
