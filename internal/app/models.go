package app

import (
	"context"
	"fmt"
	"io"

	"github.com/siddug/wave-sub000/internal/config"
	"github.com/siddug/wave-sub000/internal/logging"
	"github.com/siddug/wave-sub000/internal/models"
)

const defaultModelDir = "models"

func downloader(cfg config.Config) *models.Downloader {
	dir := cfg.ModelDir
	if dir == "" {
		dir = defaultModelDir
	}
	return models.NewDownloader(dir)
}

// RunModelDownload fetches a model file into the model directory.
func RunModelDownload(ctx context.Context, cfg config.Config, url, name string) error {
	log := logging.NewLogger(ctx).WithComponent("models")
	path, err := downloader(cfg).Download(ctx, url, name, func(done, total int64) {
		if total > 0 {
			log.Infof("%s: %.1f%%", name, 100*float64(done)/float64(total))
			return
		}
		log.Infof("%s: %d bytes", name, done)
	})
	if err != nil {
		return err
	}
	log.Infof("saved %s", path)
	return nil
}

// RunModelList prints the model directory.
func RunModelList(cfg config.Config, w io.Writer) error {
	files, err := downloader(cfg).List()
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%d\n", f.Name, f.Size)
	}
	return nil
}

// RunModelDelete removes a downloaded model file.
func RunModelDelete(cfg config.Config, name string) error {
	return downloader(cfg).Delete(name)
}
