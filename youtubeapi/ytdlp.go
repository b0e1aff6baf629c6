package youtubeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
)

// Extractor produces a DirectStream from a channel live-page URL, or
// (nil, nil) when nothing is live there. Implementations may be slow and
// blocking; CheckLive runs them under the caller's context deadline.
type Extractor interface {
	Extract(ctx context.Context, url string) (*DirectStream, error)
}

// YTDLP extracts live metadata by shelling out to the yt-dlp binary with
// JSON output. The subprocess runs in its own OS process, so a slow page
// never ties up the caller's scheduler; cancelling ctx kills it.
type YTDLP struct {
	// Path overrides the binary name looked up on PATH.
	Path   string
	Logger *slog.Logger
}

func (y *YTDLP) bin() string {
	if y.Path != "" {
		return y.Path
	}
	return "yt-dlp"
}

func (y *YTDLP) log() *slog.Logger {
	if y.Logger != nil {
		return y.Logger
	}
	return slog.Default()
}

func (y *YTDLP) Extract(ctx context.Context, url string) (*DirectStream, error) {
	args := []string{
		"-J",
		"--no-warnings",
		"--skip-download",
		"--no-playlist",
		url,
	}
	cmd := exec.CommandContext(ctx, y.bin(), args...)
	out, err := cmd.Output()
	if err != nil {
		// yt-dlp exits non-zero for offline channels as well as real
		// failures; both read as "nothing extracted" at the call site.
		y.log().Debug("yt-dlp extraction failed", slog.String("url", url), slog.Any("err", err))
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}
	return parseExtraction(out)
}

// parseExtraction decodes yt-dlp -J output into the flat record.
// Empty or non-live output yields (nil, nil).
func parseExtraction(out []byte) (*DirectStream, error) {
	if len(out) == 0 {
		return nil, nil
	}
	var rec DirectStream
	if err := json.Unmarshal(out, &rec); err != nil {
		return nil, fmt.Errorf("parse yt-dlp output: %w", err)
	}
	if rec.Title == "" {
		return nil, nil
	}
	return &rec, nil
}
