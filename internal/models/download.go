package models

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ProgressFunc is called periodically with bytes downloaded and total size
// (-1 when the server did not send a length).
type ProgressFunc func(downloaded, total int64)

// File is one model in the cache directory.
type File struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Downloader manages model files under Dir.
type Downloader struct {
	Dir    string
	Client *http.Client
}

// NewDownloader stores models under dir.
func NewDownloader(dir string) *Downloader {
	return &Downloader{Dir: dir, Client: &http.Client{Timeout: 30 * time.Minute}}
}

// Path returns where a model named name lives.
func (d *Downloader) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.HasSuffix(name, ".tmp") {
		return "", fmt.Errorf("invalid model name %q", name)
	}
	return filepath.Join(d.Dir, name), nil
}

// Download fetches url into Dir/name through a temporary file, so a partial
// download never shows up in List.
func (d *Downloader) Download(ctx context.Context, url, name string, onProgress ProgressFunc) (string, error) {
	dest, err := d.Path(name)
	if err != nil {
		return "", err
	}
	tmp := dest + ".tmp"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: status %d", name, resp.StatusCode)
	}
	if err = os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", err
	}

	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	reader := &progressReader{r: resp.Body, total: resp.ContentLength, onProgress: onProgress}
	_, copyErr := io.Copy(f, reader)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("download %s: %w", name, copyErr)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return dest, nil
}

// Delete removes a model file. Deleting a missing model is not an error.
func (d *Downloader) Delete(name string) error {
	p, err := d.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns the completed model files, sorted by name.
func (d *Downloader) List() ([]File, error) {
	entries, err := os.ReadDir(d.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []File
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, File{
			Name:    e.Name(),
			Path:    filepath.Join(d.Dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type progressReader struct {
	r          io.Reader
	total      int64
	downloaded int64
	onProgress ProgressFunc
	lastReport int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	pr.downloaded += int64(n)
	if pr.onProgress == nil {
		return n, err
	}
	// report every ~1MB
	if pr.downloaded-pr.lastReport >= 1<<20 || err == io.EOF {
		pr.onProgress(pr.downloaded, pr.total)
		pr.lastReport = pr.downloaded
	}
	return n, err
}
