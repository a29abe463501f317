package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterPeriods(t *testing.T) {
	names := []string{
		"/pdet/microdados/RAIS/2021",
		"/pdet/microdados/RAIS/2023/",
		"2022",
		"Layouts",
		"2023",
		"README.txt",
		"2018_antigo",
	}

	assert.Equal(t, []string{"2023", "2022", "2021", "2018_antigo"}, filterPeriods(names))
	assert.Empty(t, filterPeriods([]string{"docs", "layout"}))
}

func TestFilterArchives(t *testing.T) {
	names := []string{
		"/pdet/2023/RAIS_VINC_PUB_SP.7z",
		"/pdet/2023/RAIS_ESTAB_PUB.7z",
		"/pdet/2023/LEIAME.txt",
		"RAIS_VINC_PUB_SUL.7z",
		"/pdet/2023/RAIS_VINC_PUB_SP.7z",
	}

	files := filterArchives(names, []string{"RAIS_ESTAB_PUB.7z"})

	assert.Equal(t, []string{"RAIS_VINC_PUB_SP.7z", "RAIS_VINC_PUB_SUL.7z"}, files)
}

func TestSafeJoin(t *testing.T) {
	dir := t.TempDir()

	target, err := safeJoin(dir, "nested/RAIS.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nested", "RAIS.txt"), target)

	_, err = safeJoin(dir, "../escape.txt")
	assert.Error(t, err)

	_, err = safeJoin(dir, "a/../../escape.txt")
	assert.Error(t, err)
}

func TestWorkPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("tmp", "RAIS_VINC_PUB_SP.7z"), ArchivePath("tmp", "RAIS_VINC_PUB_SP.7z"))
	assert.Equal(t, filepath.Join("tmp", "RAIS_VINC_PUB_SP.txt"), TextPath("tmp", "RAIS_VINC_PUB_SP.7z"))
	assert.Equal(t, filepath.Join("tmp", "RAIS_VINC_PUB_SP.txt"), TextPath("tmp", "RAIS_VINC_PUB_SP.7Z"))

	text := TextPath("tmp", "RAIS_VINC_PUB_SP.7z")
	assert.Equal(t, filepath.Join("processed", "RAIS_VINC_PUB_SP_tratado.csv"), OutputPath("processed", text))
}
