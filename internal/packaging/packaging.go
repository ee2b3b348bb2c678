// Package packaging assembles finished segment outputs into the final
// deliverable: loose files for small batches, a zip archive for large ones.
package packaging

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"log/slog"

	"clipd/internal/config"
	"clipd/internal/fileutil"
	"clipd/internal/logging"
	"clipd/internal/timecode"
)

// Item is one successful segment output to deliver.
type Item struct {
	Index int
	Range timecode.Range
	Path  string
}

// Result describes what was produced.
type Result struct {
	Archived    bool
	ArchivePath string
	Files       []string
	Manifest    bool
}

// Packager writes deliverables into the output directory.
type Packager struct {
	outputDir string
	threshold int
	logger    *slog.Logger
}

// New builds a packager from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Packager {
	return &Packager{
		outputDir: cfg.Paths.OutputDir,
		threshold: cfg.Packaging.PerFileThreshold,
		logger:    logging.NewComponentLogger(logger, "packaging"),
	}
}

// Package delivers the items for one batch. Batches whose total segment
// count reaches the per-file threshold are bundled into a single archive;
// smaller ones are copied out individually. When archiving fails the batch
// degrades to individual files rather than losing finished work. failed
// lists segment indices that produced no output; it counts toward the
// threshold, so a large batch with failures still ships as an archive with
// a manifest naming the missing segments.
func (p *Packager) Package(ctx context.Context, sourceName string, items []Item, failed []int) (Result, error) {
	if len(items) == 0 {
		return Result{}, fmt.Errorf("packaging: nothing to deliver")
	}
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("packaging: create output dir: %w", err)
	}

	base := baseName(sourceName)
	if len(items)+len(failed) < p.threshold {
		return p.deliverFiles(ctx, base, items)
	}

	result, err := p.deliverArchive(ctx, base, items, failed)
	if err != nil {
		p.logger.WarnContext(ctx, "archive failed; delivering individual files",
			logging.String("source_file", sourceName),
			logging.Error(err),
		)
		return p.deliverFiles(ctx, base, items)
	}
	return result, nil
}

func (p *Packager) deliverFiles(ctx context.Context, base string, items []Item) (Result, error) {
	result := Result{}
	for _, item := range items {
		dest := filepath.Join(p.outputDir, entryName(base, item))
		if err := fileutil.CopyFileVerified(item.Path, dest); err != nil {
			return Result{}, fmt.Errorf("packaging: copy clip %d: %w", item.Index, err)
		}
		result.Files = append(result.Files, dest)
	}
	p.logger.InfoContext(ctx, "delivered clips",
		logging.Int("clips", len(result.Files)),
		logging.String("output_dir", p.outputDir),
	)
	return result, nil
}

func (p *Packager) deliverArchive(ctx context.Context, base string, items []Item, failed []int) (Result, error) {
	archivePath := filepath.Join(p.outputDir, base+"_clips.zip")
	f, err := os.Create(archivePath)
	if err != nil {
		return Result{}, fmt.Errorf("packaging: create archive: %w", err)
	}

	writer := zip.NewWriter(f)
	cleanup := func() {
		_ = writer.Close()
		_ = f.Close()
		_ = os.Remove(archivePath)
	}

	for _, item := range items {
		if err := addArchiveEntry(writer, entryName(base, item), item.Path); err != nil {
			cleanup()
			return Result{}, err
		}
	}

	manifest := len(failed) > 0
	if manifest {
		if err := addManifest(writer, failed); err != nil {
			cleanup()
			return Result{}, err
		}
	}

	if err := writer.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(archivePath)
		return Result{}, fmt.Errorf("packaging: finalize archive: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(archivePath)
		return Result{}, fmt.Errorf("packaging: close archive: %w", err)
	}

	p.logger.InfoContext(ctx, "delivered archive",
		logging.String("archive", archivePath),
		logging.Int("clips", len(items)),
		logging.Int("failed_segments", len(failed)),
	)
	return Result{Archived: true, ArchivePath: archivePath, Manifest: manifest}, nil
}

func addArchiveEntry(writer *zip.Writer, name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("packaging: open clip: %w", err)
	}
	defer in.Close()

	out, err := writer.Create(name)
	if err != nil {
		return fmt.Errorf("packaging: add archive entry: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("packaging: write archive entry: %w", err)
	}
	return nil
}

func addManifest(writer *zip.Writer, failed []int) error {
	out, err := writer.Create("manifest.txt")
	if err != nil {
		return fmt.Errorf("packaging: add manifest: %w", err)
	}
	var b strings.Builder
	b.WriteString("failed segments:\n")
	for _, index := range failed {
		fmt.Fprintf(&b, "  %d\n", index)
	}
	if _, err := io.WriteString(out, b.String()); err != nil {
		return fmt.Errorf("packaging: write manifest: %w", err)
	}
	return nil
}

// entryName builds a clip filename from the source base name, the segment
// index, and its range. Colons are not filesystem-safe, swap them for dots.
func entryName(base string, item Item) string {
	rangeLabel := strings.ReplaceAll(item.Range.String(), ":", ".")
	ext := filepath.Ext(item.Path)
	if ext == "" {
		ext = ".mp4"
	}
	return fmt.Sprintf("%s_%02d_%s%s", base, item.Index, rangeLabel, ext)
}

func baseName(sourceName string) string {
	base := filepath.Base(sourceName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." {
		base = "clips"
	}
	return base
}
