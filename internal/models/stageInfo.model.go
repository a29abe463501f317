package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// StageInfo is the diagnostic payload attached to a tracked file. Each variant
// serializes to the flat key set written by earlier versions of the state file.
type StageInfo interface {
	Kind() string
	fields() map[string]any
}

type DownloadInfo struct {
	SizeMB decimal.Decimal `json:"file_size_mb"`
}

type ExtractInfo struct {
	SizeMB decimal.Decimal `json:"extracted_file_size_mb"`
}

type ProcessingInfo struct {
	Records int64           `json:"total_records"`
	Chunks  int             `json:"chunks_processed"`
	SizeMB  decimal.Decimal `json:"output_file_size_mb"`
}

type UploadInfo struct {
	TableRows        int64  `json:"table_total_rows"`
	WriteDisposition string `json:"write_disposition"`
}

type ErrorInfo struct {
	Message string `json:"error"`
}

// RawInfo preserves a payload this version does not understand.
type RawInfo struct {
	Raw json.RawMessage
}

func (DownloadInfo) Kind() string   { return "download" }
func (ExtractInfo) Kind() string    { return "extract" }
func (ProcessingInfo) Kind() string { return "processing" }
func (UploadInfo) Kind() string     { return "upload" }
func (ErrorInfo) Kind() string      { return "error" }
func (RawInfo) Kind() string        { return "raw" }

func (i DownloadInfo) fields() map[string]any {
	return map[string]any{"file_size_mb": json.Number(i.SizeMB.String())}
}

func (i ExtractInfo) fields() map[string]any {
	return map[string]any{"extracted_file_size_mb": json.Number(i.SizeMB.String())}
}

func (i ProcessingInfo) fields() map[string]any {
	return map[string]any{
		"total_records":       i.Records,
		"chunks_processed":    i.Chunks,
		"output_file_size_mb": json.Number(i.SizeMB.String()),
	}
}

func (i UploadInfo) fields() map[string]any {
	return map[string]any{
		"table_total_rows":  i.TableRows,
		"write_disposition": i.WriteDisposition,
	}
}

func (i ErrorInfo) fields() map[string]any {
	return map[string]any{"error": i.Message}
}

func (i RawInfo) fields() map[string]any {
	return nil
}

// SizeMB converts a byte count to megabytes rounded to one decimal place.
func SizeMB(bytes int64) decimal.Decimal {
	return decimal.NewFromInt(bytes).Div(decimal.NewFromInt(1024 * 1024)).Round(1)
}

// EncodeStageInfo renders info as a JSON object; nil encodes as {}.
func EncodeStageInfo(info StageInfo) (json.RawMessage, error) {
	if info == nil {
		return json.RawMessage("{}"), nil
	}
	if raw, ok := info.(RawInfo); ok {
		if len(raw.Raw) == 0 {
			return json.RawMessage("{}"), nil
		}
		return raw.Raw, nil
	}
	return json.Marshal(info.fields())
}

// DecodeStageInfo picks the variant from the stage the payload was recorded with.
// Payloads that do not fit the expected variant are kept as RawInfo.
func DecodeStageInfo(stage Stage, raw json.RawMessage) StageInfo {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return RawInfo{Raw: append(json.RawMessage(nil), trimmed...)}
	}

	decode := func(target StageInfo, required ...string) StageInfo {
		for _, key := range required {
			if _, ok := probe[key]; !ok {
				return RawInfo{Raw: append(json.RawMessage(nil), trimmed...)}
			}
		}
		if err := json.Unmarshal(trimmed, target); err != nil {
			return RawInfo{Raw: append(json.RawMessage(nil), trimmed...)}
		}
		return target
	}

	if stage.IsFailure() {
		var info ErrorInfo
		result := decode(&info, "error")
		if _, ok := result.(RawInfo); ok {
			return result
		}
		return info
	}

	switch stage {
	case StageDownloaded:
		var info DownloadInfo
		if result, ok := decode(&info, "file_size_mb").(RawInfo); ok {
			return result
		}
		return info
	case StageExtracted:
		var info ExtractInfo
		if result, ok := decode(&info, "extracted_file_size_mb").(RawInfo); ok {
			return result
		}
		return info
	case StageProcessed:
		var info ProcessingInfo
		if result, ok := decode(&info, "total_records").(RawInfo); ok {
			return result
		}
		return info
	case StageUploaded:
		var info UploadInfo
		if result, ok := decode(&info, "table_total_rows").(RawInfo); ok {
			return result
		}
		return info
	}

	return RawInfo{Raw: append(json.RawMessage(nil), trimmed...)}
}

type trackedFileJSON struct {
	Stage     Stage           `json:"stage"`
	Success   bool            `json:"success"`
	Timestamp string          `json:"timestamp"`
	Info      json.RawMessage `json:"info"`
}

// timestamps written without a zone by older versions are read as local time
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(raw string) time.Time {
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func (t TrackedFile) MarshalJSON() ([]byte, error) {
	info, err := EncodeStageInfo(t.Info)
	if err != nil {
		return nil, err
	}

	var timestamp string
	if !t.Timestamp.IsZero() {
		timestamp = t.Timestamp.Format(time.RFC3339Nano)
	}

	return json.Marshal(trackedFileJSON{
		Stage:     t.Stage,
		Success:   t.Success,
		Timestamp: timestamp,
		Info:      info,
	})
}

func (t *TrackedFile) UnmarshalJSON(data []byte) error {
	var raw trackedFileJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Stage == "" {
		raw.Stage = StageNotStarted
	}

	t.Stage = raw.Stage
	t.Success = raw.Success
	t.Timestamp = parseTimestamp(raw.Timestamp)
	t.Info = DecodeStageInfo(raw.Stage, raw.Info)
	return nil
}

type progressStateJSON struct {
	SessionID     string                  `json:"session_id"`
	CurrentPeriod *string                 `json:"current_period"`
	CurrentYear   *string                 `json:"current_year,omitempty"`
	FilesStatus   map[string]*TrackedFile `json:"files_status"`
	LastUpdate    *string                 `json:"last_update"`
}

func (p ProgressState) MarshalJSON() ([]byte, error) {
	out := progressStateJSON{
		SessionID:   p.SessionID,
		FilesStatus: make(map[string]*TrackedFile, len(p.Files)),
	}
	if p.CurrentPeriod != "" {
		period := p.CurrentPeriod
		out.CurrentPeriod = &period
	}
	if p.LastUpdate != nil {
		lastUpdate := p.LastUpdate.Format(time.RFC3339Nano)
		out.LastUpdate = &lastUpdate
	}
	for key, file := range p.Files {
		out.FilesStatus[key.String()] = file
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the legacy current_year key. Entries whose key cannot be
// parsed are dropped rather than failing the whole document.
func (p *ProgressState) UnmarshalJSON(data []byte) error {
	var raw progressStateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.SessionID = raw.SessionID
	p.CurrentPeriod = ""
	switch {
	case raw.CurrentPeriod != nil:
		p.CurrentPeriod = *raw.CurrentPeriod
	case raw.CurrentYear != nil:
		p.CurrentPeriod = *raw.CurrentYear
	}

	p.LastUpdate = nil
	if raw.LastUpdate != nil {
		if parsed := parseTimestamp(*raw.LastUpdate); !parsed.IsZero() {
			p.LastUpdate = &parsed
		}
	}

	p.Files = make(map[FileKey]*TrackedFile, len(raw.FilesStatus))
	for rawKey, file := range raw.FilesStatus {
		key, err := ParseFileKey(rawKey)
		if err != nil || file == nil {
			continue
		}
		p.Files[key] = file
	}
	return nil
}
