package app

import (
	"context"
	"fmt"
	"os"

	"github.com/siddug/wave-sub000/internal/config"
	"github.com/siddug/wave-sub000/internal/logging"
	"github.com/siddug/wave-sub000/internal/pipeline"
)

// RunFileMode runs the pipeline on an existing recording and writes the
// resulting text to outputPath (input name with .txt when empty).
func RunFileMode(ctx context.Context, cfg config.Config, inputPath, outputPath string) error {
	log := logging.NewLogger(ctx).WithComponent("main")
	tempDir := config.TempDir(&cfg)
	cleanupOldTempFiles(tempDir)

	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("file '%s' stat failed: %w", inputPath, err)
	}
	st, err := openSettings(cfg)
	if err != nil {
		return err
	}
	pipe, release, err := buildPipeline(ctx, cfg, st, tempDir)
	if err != nil {
		return err
	}
	defer release()

	res := pipe.Process(ctx, inputPath, func(s pipeline.Stage) { log.Debugf("stage %s", s) })
	if !res.Success {
		return res.Err
	}
	if res.FallbackReason != "" {
		log.Infof("enhancement skipped (%s)", res.FallbackReason)
	}

	out := textOutputPath(inputPath, outputPath)
	if err := os.WriteFile(out, []byte(res.Text), 0644); err != nil {
		return err
	}
	log.Infof("wrote %d chars to %s", len(res.Text), out)
	return nil
}
