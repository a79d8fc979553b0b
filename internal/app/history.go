package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/siddug/wave-sub000/internal/config"
	"github.com/siddug/wave-sub000/internal/history"
)

var (
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	idStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF"))
	originalStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true)
)

// RunHistory prints one page of history, or deletes deleteID when set.
func RunHistory(ctx context.Context, cfg config.Config, w io.Writer, page, limit int, deleteID string) error {
	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	if deleteID != "" {
		if err := store.Delete(ctx, deleteID); err != nil {
			return err
		}
		fmt.Fprintf(w, "deleted %s\n", deleteID)
		return nil
	}

	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	recs, err := store.List(ctx, page, limit)
	if err != nil {
		return err
	}
	for _, r := range recs {
		fmt.Fprintf(w, "%s %s %.1fs\n", timestampStyle.Render(r.Timestamp.Local().Format("2006-01-02 15:04:05")), idStyle.Render(r.ID), r.DurationSeconds)
		text := r.EnhancedText
		if strings.TrimSpace(text) == "" {
			text = "(no text)"
		}
		fmt.Fprintf(w, "  %s\n", text)
		if r.OriginalText != "" && r.OriginalText != r.EnhancedText {
			fmt.Fprintf(w, "  %s\n", originalStyle.Render("original: "+r.OriginalText))
		}
	}
	fmt.Fprintf(w, "%d of %d records\n", len(recs), total)
	return nil
}
