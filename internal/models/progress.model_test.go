package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_Reached(t *testing.T) {
	tests := []struct {
		stage    Stage
		target   Stage
		expected bool
	}{
		{StageUploaded, StageProcessed, true},
		{StageProcessed, StageProcessed, true},
		{StageExtracted, StageProcessed, false},
		{StageUploadFailed, StageProcessed, true},
		{StageUploadFailed, StageUploaded, false},
		{StageExtractionFailed, StageDownloaded, true},
		{StageExtractionFailed, StageExtracted, false},
		{StageDownloadFailed, StageDownloaded, false},
		{StageNotStarted, StageDownloaded, false},
		{Stage("BOGUS"), StageDownloaded, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage)+"->"+string(tt.target), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.stage.Reached(tt.target))
		})
	}
}

func TestStage_Failure(t *testing.T) {
	assert.True(t, StageDownloadFailed.IsFailure())
	assert.False(t, StageUploaded.IsFailure())
	assert.Equal(t, StageProcessingFailed, FailureOf(StageProcessed))
	assert.Equal(t, StageNotStarted, FailureOf(StageNotStarted))
	assert.False(t, Stage("BOGUS").IsKnown())
}

func TestParseFileKey(t *testing.T) {
	key, err := ParseFileKey("2023:RAIS_VINC_PUB_SP.7z")
	require.NoError(t, err)
	assert.Equal(t, NewFileKey("2023", "RAIS_VINC_PUB_SP.7z"), key)
	assert.Equal(t, "2023:RAIS_VINC_PUB_SP.7z", key.String())

	key, err = ParseFileKey("2023:odd:name.7z")
	require.NoError(t, err)
	assert.Equal(t, "odd:name.7z", key.Filename)

	for _, raw := range []string{"", "2023", ":file.7z", "2023:"} {
		_, err := ParseFileKey(raw)
		assert.Error(t, err, raw)
	}
}

func TestProgressState_DecodesLegacyDocument(t *testing.T) {
	document := `{
		"session_id": "20240301_103000",
		"current_year": "2022",
		"last_update": "2024-03-01T10:45:00.123456",
		"files_status": {
			"2022:RAIS_VINC_PUB_SP.7z": {
				"stage": "PROCESSED",
				"success": true,
				"timestamp": "2024-03-01T10:40:00",
				"info": {"total_records": 1200, "chunks_processed": 3, "output_file_size_mb": 12.5}
			},
			"2022:RAIS_VINC_PUB_SUL.7z": {
				"stage": "DOWNLOAD_FAILED",
				"success": false,
				"timestamp": "2024-03-01T10:41:00",
				"info": {"error": "timed out"}
			},
			"malformed": {"stage": "UPLOADED"}
		}
	}`

	var state ProgressState
	require.NoError(t, json.Unmarshal([]byte(document), &state))

	assert.Equal(t, "20240301_103000", state.SessionID)
	assert.Equal(t, "2022", state.CurrentPeriod)
	require.NotNil(t, state.LastUpdate)
	assert.Len(t, state.Files, 2)

	processed := state.Files[NewFileKey("2022", "RAIS_VINC_PUB_SP.7z")]
	require.NotNil(t, processed)
	info, ok := processed.Info.(ProcessingInfo)
	require.True(t, ok)
	assert.Equal(t, int64(1200), info.Records)
	assert.True(t, info.SizeMB.Equal(decimal.RequireFromString("12.5")))

	failed := state.Files[NewFileKey("2022", "RAIS_VINC_PUB_SUL.7z")]
	require.NotNil(t, failed)
	assert.Equal(t, "timed out", failed.ErrorMessage())
}

func TestProgressState_EncodesCurrentKeys(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	state := NewProgressState(now)
	state.CurrentPeriod = "2023"
	state.Files[NewFileKey("2023", "A.7z")] = &TrackedFile{
		Stage:     StageUploaded,
		Success:   true,
		Timestamp: now,
		Info:      UploadInfo{TableRows: 42, WriteDisposition: "WRITE_TRUNCATE"},
	}

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "2023", raw["current_period"])
	assert.NotContains(t, raw, "current_year")

	files := raw["files_status"].(map[string]any)
	entry := files["2023:A.7z"].(map[string]any)
	assert.Equal(t, "UPLOADED", entry["stage"])
	assert.Equal(t, map[string]any{"table_total_rows": float64(42), "write_disposition": "WRITE_TRUNCATE"}, entry["info"])
}

func TestDecodeStageInfo_KeepsUnknownPayload(t *testing.T) {
	info := DecodeStageInfo(StageDownloaded, json.RawMessage(`{"unexpected": true}`))

	raw, ok := info.(RawInfo)
	require.True(t, ok)

	encoded, err := EncodeStageInfo(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"unexpected": true}`, string(encoded))

	assert.Nil(t, DecodeStageInfo(StageUploaded, json.RawMessage(`{}`)))
}

func TestSizeMB(t *testing.T) {
	assert.Equal(t, "1.5", SizeMB(3<<19).String())
	assert.Equal(t, "0", SizeMB(0).String())
}
