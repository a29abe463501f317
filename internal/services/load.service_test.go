package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"raisloader/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOutput(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(utf8BOM+"a;b\n1;2\n"), 0o644))
	return path
}

func TestLoadService_Load(t *testing.T) {
	ctx := context.Background()
	table := TableRef{Dataset: "rais", Table: "2023-12"}
	key := models.NewFileKey("2023", "A.7z")

	t.Run("records upload info", func(t *testing.T) {
		progress, _ := newTestProgress()
		retry, _ := newTestRetry(2)
		dest := &fakeDestination{}
		path := writeOutput(t, "A_tratado.csv")

		ok := NewLoadService(dest, progress, retry).Load(ctx, key, path, table, WriteTruncate)

		require.True(t, ok)
		require.Len(t, dest.loads, 1)
		assert.Equal(t, WriteTruncate, dest.loads[0].disposition)
		assert.Equal(t, table, dest.loads[0].table)

		file, _ := progress.Get(key)
		assert.Equal(t, models.StageUploaded, file.Stage)
		assert.Equal(t, models.UploadInfo{TableRows: 10, WriteDisposition: "WRITE_TRUNCATE"}, file.Info)
	})

	t.Run("retries transient failure", func(t *testing.T) {
		progress, _ := newTestProgress()
		retry, delays := newTestRetry(2)
		path := writeOutput(t, "A_tratado.csv")
		dest := &fakeDestination{failures: map[string][]error{
			filepath.Base(path): {MarkTransient(errors.New("backendError"))},
		}}

		ok := NewLoadService(dest, progress, retry).Load(ctx, key, path, table, WriteAppend)

		assert.True(t, ok)
		assert.Len(t, *delays, 1)
		assert.Equal(t, models.StageUploaded, progress.GetStage(key))
	})

	t.Run("permanent failure records UPLOAD_FAILED", func(t *testing.T) {
		progress, _ := newTestProgress()
		retry, delays := newTestRetry(2)
		path := writeOutput(t, "A_tratado.csv")
		dest := &fakeDestination{failures: map[string][]error{
			filepath.Base(path): {errors.New("invalid schema")},
		}}

		ok := NewLoadService(dest, progress, retry).Load(ctx, key, path, table, WriteAppend)

		assert.False(t, ok)
		assert.Empty(t, *delays)
		assert.Equal(t, models.StageUploadFailed, progress.GetStage(key))
		file, _ := progress.Get(key)
		assert.Equal(t, "invalid schema", file.ErrorMessage())
	})

	t.Run("skips uploaded file", func(t *testing.T) {
		progress, _ := newTestProgress()
		retry, _ := newTestRetry(2)
		dest := &fakeDestination{}
		progress.SetStage(ctx, key, models.StageUploaded, true, nil)

		ok := NewLoadService(dest, progress, retry).Load(ctx, key, "missing.csv", table, WriteTruncate)

		assert.True(t, ok)
		assert.False(t, dest.touched())
	})
}
