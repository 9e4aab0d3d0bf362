package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/voxscribe/worker/internal/client"
	"github.com/voxscribe/worker/internal/model"
)

// textualExtensions lists filename extensions whose content is decoded as
// text. Classification only picks the placeholder builder; the real
// transcription path re-fetches raw bytes regardless.
var textualExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".srt": true,
	".vtt": true,
	".log": true,
}

// jobMedia bundles media metadata with classified content.
type jobMedia struct {
	meta    *model.MediaFile
	raw     []byte
	text    string
	textual bool
}

// fetchMedia resolves job -> metadata -> raw content bytes.
func (w *Worker) fetchMedia(ctx context.Context, gw client.Gateway, job *model.Job) (*jobMedia, error) {
	meta, err := gw.GetMedia(ctx, job.MediaFileID)
	if err != nil {
		return nil, fmt.Errorf("get media %s: %w", job.MediaFileID, err)
	}

	raw, err := gw.Download(ctx, job.MediaFileID)
	if err != nil {
		return nil, fmt.Errorf("download media %s: %w", job.MediaFileID, err)
	}

	med := &jobMedia{meta: meta, raw: raw}
	if isTextual(meta.OriginalFilename) {
		med.textual = true
		med.text = decodeUTF8Lossy(raw)
	}

	w.debugf("fetched media %s (%q, %d bytes, textual=%v)", meta.ID, meta.OriginalFilename, len(raw), med.textual)
	return med, nil
}

func isTextual(filename string) bool {
	return textualExtensions[strings.ToLower(filepath.Ext(filename))]
}

// decodeUTF8Lossy decodes bytes as UTF-8, replacing invalid sequences
// instead of failing.
func decodeUTF8Lossy(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
