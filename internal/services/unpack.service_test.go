package services

import (
	"context"
	"errors"
	"os"
	"testing"

	"raisloader/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnpackService_Unpack(t *testing.T) {
	ctx := context.Background()
	key := models.NewFileKey("2023", "RAIS_VINC_PUB_SP.7z")

	t.Run("extracts expected text file", func(t *testing.T) {
		progress, _ := newTestProgress()
		dir := t.TempDir()
		extractor := &fakeExtractor{texts: map[string][]byte{key.Filename: []byte("a;b\n")}}

		path, ok := NewUnpackService(extractor, progress).Unpack(ctx, key, ArchivePath(dir, key.Filename), dir)

		require.True(t, ok)
		assert.Equal(t, TextPath(dir, key.Filename), path)
		assert.Equal(t, models.StageExtracted, progress.GetStage(key))
	})

	t.Run("re-extracts when text file was removed", func(t *testing.T) {
		progress, _ := newTestProgress()
		dir := t.TempDir()
		extractor := &fakeExtractor{texts: map[string][]byte{key.Filename: []byte("a;b\n")}}
		progress.SetStage(ctx, key, models.StageExtracted, true, nil)

		_, ok := NewUnpackService(extractor, progress).Unpack(ctx, key, ArchivePath(dir, key.Filename), dir)

		assert.True(t, ok)
		assert.Equal(t, 1, extractor.calls)
	})

	t.Run("extracts downloaded archive without text file", func(t *testing.T) {
		progress, _ := newTestProgress()
		dir := t.TempDir()
		archive := ArchivePath(dir, key.Filename)
		extractor := &fakeExtractor{texts: map[string][]byte{key.Filename: []byte("a;b\n")}}
		require.NoError(t, os.WriteFile(archive, []byte("7z-archive"), 0o644))
		progress.SetStage(ctx, key, models.StageDownloaded, true, nil)

		path, ok := NewUnpackService(extractor, progress).Unpack(ctx, key, archive, dir)

		require.True(t, ok)
		assert.Equal(t, 1, extractor.calls)
		assert.FileExists(t, path)
		assert.Equal(t, models.StageExtracted, progress.GetStage(key))
	})

	t.Run("cancelled extraction records no failure", func(t *testing.T) {
		progress, _ := newTestProgress()
		dir := t.TempDir()
		extractor := &fakeExtractor{err: context.Canceled}
		progress.SetStage(ctx, key, models.StageDownloaded, true, nil)

		_, ok := NewUnpackService(extractor, progress).Unpack(ctx, key, ArchivePath(dir, key.Filename), dir)

		assert.False(t, ok)
		assert.Equal(t, models.StageDownloaded, progress.GetStage(key))
	})

	t.Run("skips when text file exists", func(t *testing.T) {
		progress, _ := newTestProgress()
		dir := t.TempDir()
		extractor := &fakeExtractor{}
		require.NoError(t, os.WriteFile(TextPath(dir, key.Filename), []byte("a;b\n"), 0o644))
		progress.SetStage(ctx, key, models.StageExtracted, true, nil)

		_, ok := NewUnpackService(extractor, progress).Unpack(ctx, key, ArchivePath(dir, key.Filename), dir)

		assert.True(t, ok)
		assert.Zero(t, extractor.calls)
	})

	t.Run("missing text file fails", func(t *testing.T) {
		progress, _ := newTestProgress()
		dir := t.TempDir()
		extractor := &fakeExtractor{texts: map[string][]byte{}}

		_, ok := NewUnpackService(extractor, progress).Unpack(ctx, key, ArchivePath(dir, key.Filename), dir)

		assert.False(t, ok)
		assert.Equal(t, models.StageExtractionFailed, progress.GetStage(key))
		file, _ := progress.Get(key)
		assert.Contains(t, file.ErrorMessage(), ErrExtractedFileMissing.Error())
	})

	t.Run("extractor error fails without retry", func(t *testing.T) {
		progress, _ := newTestProgress()
		dir := t.TempDir()
		extractor := &fakeExtractor{err: errors.New("corrupt archive")}

		_, ok := NewUnpackService(extractor, progress).Unpack(ctx, key, ArchivePath(dir, key.Filename), dir)

		assert.False(t, ok)
		assert.Equal(t, 1, extractor.calls)
		assert.Equal(t, models.StageExtractionFailed, progress.GetStage(key))
	})
}
