// Package downloader fetches the Nomenclator dump and unpacks it into the work
// directory. A populated work directory is reused without touching the network.
package downloader

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brensch/nomenclator/internal/config"
	"github.com/brensch/nomenclator/internal/metrics"
	"github.com/brensch/nomenclator/internal/util"
)

var (
	// ErrTransport covers request, status and body read failures.
	ErrTransport = errors.New("transport error")
	// ErrArchive covers a body that is not a readable ZIP or an unreadable entry.
	ErrArchive = errors.New("archive error")
)

// FetchResult describes what Fetch did.
type FetchResult struct {
	Dir string
	// Reused is set when the directory already had content and nothing was downloaded.
	Reused   bool
	Bytes    int64
	Entries  int
	Duration time.Duration
}

// FetchArchive makes sure cfg.WorkDir holds the extracted dump and returns it.
func FetchArchive(ctx context.Context, client *http.Client, cfg config.Config, logger *slog.Logger) (string, error) {
	res, err := Fetch(ctx, client, cfg, logger)
	if err != nil {
		return "", err
	}
	return res.Dir, nil
}

// Fetch is FetchArchive with details of the work done.
func Fetch(ctx context.Context, client *http.Client, cfg config.Config, logger *slog.Logger) (*FetchResult, error) {
	start := time.Now()
	dir := cfg.WorkDir
	l := logger.With(slog.String("work_dir", dir), slog.String("url", cfg.DumpURL))

	populated, err := hasEntries(dir)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", dir, err)
	}
	if populated {
		l.Info("Work directory already populated, skipping download.")
		return &FetchResult{Dir: dir, Reused: true, Duration: time.Since(start)}, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.DumpURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrTransport, err)
	}
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/zip,application/octet-stream,*/*")

	l.Info("Downloading dump.")
	var lastReported int64
	data, err := util.DownloadFile(client, req, util.DownloadOptions{
		RateBytes: cfg.DownloadRateBytes,
		Progress: func(read, total int64) {
			metrics.DownloadBytesTotal.Add(float64(read - lastReported))
			lastReported = read
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: download %s: %w", ErrTransport, cfg.DumpURL, err)
	}
	l.Debug("Download complete.", slog.Int("bytes", len(data)), slog.Duration("duration", time.Since(start).Round(time.Millisecond)))

	n, err := Extract(data, dir, l)
	if err != nil {
		return nil, err
	}
	res := &FetchResult{Dir: dir, Bytes: int64(len(data)), Entries: n, Duration: time.Since(start)}
	l.Info("Dump extracted.", slog.Int("entries", n), slog.Int64("bytes", res.Bytes), slog.Duration("duration", res.Duration.Round(time.Millisecond)))
	return res, nil
}

// Extract unpacks a ZIP held in memory under dir and returns the number of
// files written. The first failing entry aborts the extraction.
func Extract(data []byte, dir string, logger *slog.Logger) (int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	// Insecure names are rewritten by SanitizeEntryName below.
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return 0, fmt.Errorf("%w: open zip: %w", ErrArchive, err)
	}

	files := 0
	for _, f := range zr.File {
		rel := SanitizeEntryName(f.Name)
		if rel == "" {
			logger.Debug("Skipping entry with empty name.", slog.String("entry", f.Name))
			continue
		}
		target := filepath.Join(dir, rel)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, fmt.Errorf("create directory %s: %w", target, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return files, fmt.Errorf("create directory %s: %w", filepath.Dir(target), err)
		}
		if err := extractFile(f, target); err != nil {
			return files, err
		}
		logger.Debug("Extracted entry.", slog.String("entry", f.Name), slog.String("path", target))
		files++
	}
	return files, nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open entry %s: %w", ErrArchive, f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	_, copyErr := io.Copy(out, rc)
	closeErr := out.Close()
	if copyErr != nil {
		// zip.ErrChecksum and friends surface here.
		if errors.Is(copyErr, zip.ErrChecksum) || errors.Is(copyErr, zip.ErrFormat) || errors.Is(copyErr, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: copy %s: %w", ErrArchive, f.Name, copyErr)
		}
		return fmt.Errorf("copy %s: %w", f.Name, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", target, closeErr)
	}
	return nil
}

// SanitizeEntryName turns a ZIP entry name into a relative path that stays
// inside the extraction directory. Roots, drive letters, "." and ".."
// components are dropped; an empty result means the entry has no usable name.
func SanitizeEntryName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	var parts []string
	for _, p := range strings.Split(name, "/") {
		switch {
		case p == "", p == ".", p == "..":
			continue
		case len(p) == 2 && p[1] == ':' && len(parts) == 0:
			continue
		}
		parts = append(parts, p)
	}
	return filepath.Join(parts...)
}

// hasEntries reports whether dir exists and contains at least one entry.
func hasEntries(dir string) (bool, error) {
	f, err := os.Open(dir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()
	names, err := f.Readdirnames(1)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// Clean removes everything under dir so the next Fetch downloads again.
func Clean(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		errs = append(errs, os.RemoveAll(filepath.Join(dir, e.Name())))
	}
	return errors.Join(errs...)
}
