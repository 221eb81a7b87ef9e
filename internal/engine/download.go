package engine

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/olivier-w/zinc/internal/services"
)

// DownloadFile streams url into dest, writing to a temporary sibling first so
// a partial download never masquerades as an installed artifact. Progress is
// computed from Content-Length when the server provides one.
func DownloadFile(ctx context.Context, url, dest string, progress ProgressFunc, stage string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrIO, stage, "download", "create destination directory", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return services.Wrap(services.ErrIO, stage, "download", "build request for "+url, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrCancelled, stage, "download", "download interrupted", ctx.Err())
		}
		return services.Wrap(services.ErrIO, stage, "download", "fetch "+url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrIO, stage, "download", fmt.Sprintf("fetch %s: status %s", url, resp.Status), nil)
	}

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return services.Wrap(services.ErrIO, stage, "download", "create "+tmp, err)
	}

	written, copyErr := io.Copy(out, &progressReader{
		r:        resp.Body,
		total:    resp.ContentLength,
		progress: progress,
		stage:    stage,
		name:     filepath.Base(dest),
	})
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp)
		if ctx.Err() != nil {
			return services.Wrap(services.ErrCancelled, stage, "download", "download interrupted", ctx.Err())
		}
		if copyErr == nil {
			copyErr = closeErr
		}
		return services.Wrap(services.ErrIO, stage, "download", fmt.Sprintf("write %s after %d bytes", tmp, written), copyErr)
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrIO, stage, "download", "finalize "+dest, err)
	}
	return nil
}

type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	lastPct  int
	progress ProgressFunc
	stage    string
	name     string
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)
	if p.total > 0 && p.progress != nil {
		pct := int(float64(p.read) / float64(p.total) * 100)
		if pct != p.lastPct {
			p.lastPct = pct
			Report(p.progress, p.stage, float64(pct), fmt.Sprintf("Downloading %s... %d%%", p.name, pct))
		}
	}
	return n, err
}

// ExtractTarBz2 unpacks a .tar.bz2 archive into destDir, rejecting entries
// that would escape it.
func ExtractTarBz2(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	tr := tar.NewReader(bzip2.NewReader(f))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		target, err := securePath(destDir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create directory for %s: %w", target, err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("extract %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("close %s: %w", target, err)
			}
		}
	}
}

// ExtractZip unpacks a .zip archive into destDir, rejecting entries that
// would escape it.
func ExtractZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		target, err := securePath(destDir, entry.Name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", target, err)
		}
		src, err := entry.Open()
		if err != nil {
			return fmt.Errorf("open entry %s: %w", entry.Name, err)
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, entry.Mode().Perm())
		if err != nil {
			src.Close()
			return fmt.Errorf("create %s: %w", target, err)
		}
		_, copyErr := io.Copy(out, src)
		src.Close()
		if closeErr := out.Close(); copyErr == nil {
			copyErr = closeErr
		}
		if copyErr != nil {
			return fmt.Errorf("extract %s: %w", target, copyErr)
		}
	}
	return nil
}

func securePath(destDir, name string) (string, error) {
	cleaned := filepath.Clean(name)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return filepath.Join(destDir, cleaned), nil
}
