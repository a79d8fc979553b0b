package app

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/siddug/wave-sub000/internal/config"
	"github.com/siddug/wave-sub000/internal/logging"
	"github.com/siddug/wave-sub000/internal/record"
)

func newHTTPClient(cfg config.Config) *http.Client {
	tr := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if !cfg.VerifySSL {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if cfg.EnableHTTP2 {
		_ = http2.ConfigureTransport(tr)
	}
	return &http.Client{
		Transport: tr,
		Timeout:   time.Duration(cfg.RequestTimeout) * time.Second,
	}
}

// cleanupOldTempFiles removes recordings left behind by a previous run.
func cleanupOldTempFiles(dir string) {
	log := logging.NewLogger(context.Background()).WithComponent("cleanup")
	n, err := record.CleanupStale(dir, time.Now())
	if err != nil {
		log.Warnf("read dir '%s' failed: %v", dir, err)
		return
	}
	if n > 0 {
		log.Infof("removed %d stale temp files from %s", n, dir)
	}
}

// textOutputPath is the -file mode default: input name with .txt in cwd.
func textOutputPath(inputPath, outputPath string) string {
	if outputPath != "" {
		return outputPath
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return filepath.Join(cwd, base+".txt")
}
