package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/config"
)

type FileCleanupService struct {
	dirs []string
	log  logger.Logger
}

func NewFileCleanupService(config config.Config) *FileCleanupService {
	var dirs []string
	for _, dir := range []string{config.TempDir, config.ProcessedDir} {
		if dir != "" && !containsPath(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	return &FileCleanupService{
		dirs: dirs,
		log:  logger.New("fileCleanupService"),
	}
}

type StoredFile struct {
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	IsArchive  bool      `json:"is_archive"`
	IsOutput   bool      `json:"is_output"`
}

// Remove deletes the given working files. Missing files are not an error.
func (fcs *FileCleanupService) Remove(ctx context.Context, paths ...string) error {
	log := fcs.log.TraceFromContext(ctx).Function("Remove")

	var errs []error
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			errs = append(errs, err)
			log.Er("failed to remove file", err, "path", path)
			continue
		}
		log.Debug("Removed working file", "path", path)
	}

	if len(errs) > 0 {
		return log.Err("failed to remove some files", errs[0], "errorCount", len(errs))
	}
	return nil
}

// ListStoredFiles lists the working files left in the temp and processed directories.
func (fcs *FileCleanupService) ListStoredFiles(ctx context.Context) ([]StoredFile, error) {
	log := fcs.log.TraceFromContext(ctx).Function("ListStoredFiles")

	var files []StoredFile
	for _, dir := range fcs.dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			log.Debug("Directory does not exist", "directory", dir)
			continue
		}

		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}

			name := info.Name()
			files = append(files, StoredFile{
				Path:       path,
				Size:       info.Size(),
				ModifiedAt: info.ModTime(),
				IsArchive:  strings.HasSuffix(name, archiveExtension),
				IsOutput:   strings.HasSuffix(name, outputSuffix),
			})
			return nil
		})
		if err != nil {
			return nil, log.Err("failed to walk directory", err, "directory", dir)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	log.Info("Listed stored files", "count", len(files))
	return files, nil
}

// RemoveStale deletes archives and extracted text files last modified before
// cutoff. Transformed outputs are kept; they are the input of a pending load.
func (fcs *FileCleanupService) RemoveStale(ctx context.Context, cutoff time.Time) (int, error) {
	log := fcs.log.TraceFromContext(ctx).Function("RemoveStale")

	files, err := fcs.ListStoredFiles(ctx)
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, file := range files {
		if file.IsOutput || !file.ModifiedAt.Before(cutoff) {
			continue
		}
		if file.IsArchive || strings.HasSuffix(file.Path, textExtension) {
			stale = append(stale, file.Path)
		}
	}

	if len(stale) == 0 {
		return 0, nil
	}

	log.Info("Removing stale work files", "count", len(stale), "cutoff", cutoff)
	if err := fcs.Remove(ctx, stale...); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// CleanupAllFiles empties the temp and processed directories.
func (fcs *FileCleanupService) CleanupAllFiles(ctx context.Context) error {
	log := fcs.log.TraceFromContext(ctx).Function("CleanupAllFiles")

	removed := 0
	var errs []error
	for _, dir := range fcs.dirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return log.Err("failed to read directory", err, "directory", dir)
		}

		for _, entry := range entries {
			entryPath := filepath.Join(dir, entry.Name())
			if err := os.RemoveAll(entryPath); err != nil {
				errs = append(errs, err)
				log.Er("failed to remove entry", err, "path", entryPath)
				continue
			}
			removed++
		}
	}

	if len(errs) > 0 {
		return log.Err("failed to cleanup some files", errs[0], "errorCount", len(errs))
	}

	log.Info("Cleaned up working directories", "directories", fcs.dirs, "itemsRemoved", removed)
	return nil
}

func containsPath(paths []string, path string) bool {
	for _, p := range paths {
		if filepath.Clean(p) == filepath.Clean(path) {
			return true
		}
	}
	return false
}
