package services

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	textExtension = ".txt"
	outputSuffix  = "_tratado.csv"
)

// ArchivePath is where the fetched archive of filename is stored.
func ArchivePath(tempDir, filename string) string {
	return filepath.Join(tempDir, filename)
}

// TextPath is the file the archive is expected to unpack to.
func TextPath(tempDir, filename string) string {
	base := filepath.Base(filename)
	if strings.HasSuffix(strings.ToLower(base), archiveExtension) {
		base = base[:len(base)-len(archiveExtension)]
	}
	return filepath.Join(tempDir, base+textExtension)
}

// OutputPath is the transformed CSV written for a text file.
func OutputPath(processedDir, textPath string) string {
	base := strings.TrimSuffix(filepath.Base(textPath), filepath.Ext(textPath))
	return filepath.Join(processedDir, base+outputSuffix)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func ensureDirectory(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
