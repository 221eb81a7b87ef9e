package ffmpeg

import (
	"context"
	"os"
	"strings"

	"github.com/olivier-w/zinc/internal/logging"
	"github.com/olivier-w/zinc/internal/services"
)

// EmbedRequest describes a caption-embedding invocation.
type EmbedRequest struct {
	MediaPath   string // source container
	CaptionPath string // SRT sidecar to embed
	OutputPath  string // muxed result; must differ from MediaPath
	Language    string // ISO 639-2 tag stamped on the caption stream
}

// EmbedCaptions muxes the caption file into a copy of the media container.
//
// Codec choice follows the output container: WebM only carries WebVTT, so the
// track is converted and the new caption input is mapped ahead of the source
// streams; Matroska accepts SRT unmodified; everything else (MP4-family) gets
// mov_text.
func (s *Service) EmbedCaptions(ctx context.Context, req EmbedRequest) error {
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = "eng"
	}

	var args []string
	switch ext(req.MediaPath) {
	case ".webm":
		args = []string{
			"-y",
			"-i", req.MediaPath,
			"-i", req.CaptionPath,
			"-map", "1",
			"-map", "0",
			"-c", "copy",
			"-c:s", "webvtt",
			"-metadata:s:s:0", "language=" + lang,
			req.OutputPath,
		}
	case ".mkv":
		args = []string{
			"-y",
			"-i", req.MediaPath,
			"-i", req.CaptionPath,
			"-map", "0",
			"-map", "1",
			"-c", "copy",
			"-c:s", "srt",
			"-metadata:s:s:0", "language=" + lang,
			req.OutputPath,
		}
	default:
		args = []string{
			"-y",
			"-i", req.MediaPath,
			"-i", req.CaptionPath,
			"-map", "0",
			"-map", "1",
			"-c", "copy",
			"-c:s", "mov_text",
			"-metadata:s:s:0", "language=" + lang,
			req.OutputPath,
		}
	}

	s.logger.Debug("embedding captions",
		logging.String("media", req.MediaPath),
		logging.String("captions", req.CaptionPath),
		logging.String("codec", args[captionCodecIndex(args)]),
	)
	if err := s.run(ctx, s.ffmpegBin, args...); err != nil {
		_ = os.Remove(req.OutputPath)
		if ctx.Err() != nil {
			return services.Wrap(services.ErrCancelled, "embedding", "ffmpeg", "muxing interrupted", ctx.Err())
		}
		return services.Wrap(services.ErrSubprocess, "embedding", "ffmpeg", "caption muxing failed", err)
	}
	return nil
}

func captionCodecIndex(args []string) int {
	for i, a := range args {
		if a == "-c:s" && i+1 < len(args) {
			return i + 1
		}
	}
	return 0
}
