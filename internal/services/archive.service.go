package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	logger "github.com/Bparsons0904/goLogger"

	"github.com/bodgit/sevenzip"
)

// Extractor unpacks an archive into a directory and returns the files it wrote.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) ([]string, error)
}

type SevenZipExtractor struct {
	log logger.Logger
}

func NewSevenZipExtractor() *SevenZipExtractor {
	return &SevenZipExtractor{log: logger.New("sevenZipExtractor")}
}

func (e *SevenZipExtractor) Extract(ctx context.Context, archivePath, destDir string) ([]string, error) {
	log := e.log.TraceFromContext(ctx).Function("Extract")

	reader, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return nil, log.Err("failed to open archive", err, "archive", archivePath)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			log.Warn("failed to close archive", "error", closeErr, "archive", archivePath)
		}
	}()

	if err := ensureDirectory(destDir); err != nil {
		return nil, log.Err("failed to create extraction directory", err, "directory", destDir)
	}

	var written []string
	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		target, err := safeJoin(destDir, file.Name)
		if err != nil {
			return written, log.Err("refusing archive entry", err, "entry", file.Name)
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, log.Err("failed to create directory", err, "path", target)
			}
			continue
		}

		if err := extractEntry(file, target); err != nil {
			return written, log.Err("failed to extract entry", err, "entry", file.Name)
		}
		written = append(written, target)
	}

	log.Info("Archive extracted", "archive", filepath.Base(archivePath), "entries", len(written))
	return written, nil
}

func extractEntry(file *sevenzip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

// safeJoin resolves an entry name under dir, rejecting names that escape it.
func safeJoin(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q escapes %s", name, dir)
	}
	return target, nil
}
