package services

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/internal/models"
	"raisloader/internal/utils"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	FilterColumn     = "Vínculo Ativo 31/12"
	filterValue      = "1"
	fieldDelimiter   = ';'
	utf8BOM          = "\ufeff"
	progressLogEvery = 50
	readBufferSize   = 1 << 20
)

var (
	ErrNoRecords           = errors.New("no records matched the active-link filter")
	ErrFilterColumnMissing = errors.New("filter column missing from header")
)

// WhitelistColumns are the only source columns read. Output keeps source order.
var WhitelistColumns = []string{
	ColumnCNAE,
	ColumnMunicipality,
	"Natureza Jurídica",
	"Tamanho Estabelecimento",
	ColumnCBO,
	"Faixa Hora Contrat",
	"Faixa Tempo Emprego",
	"Tipo Vínculo",
	"Escolaridade após 2005",
	"Idade",
	"Nacionalidade",
	"Raça Cor",
	"Sexo Trabalhador",
	"Tipo Defic",
	"Vl Remun Média Nom",
	FilterColumn,
}

type translateMode int

const (
	translateReplace translateMode = iota
	translateAppend
	translateMunicipality
)

type translateStep struct {
	column string
	index  int
	mode   translateMode
}

// columnPlan maps a source header onto the output layout.
type columnPlan struct {
	sourceIndex []int
	filterIndex int
	headerWidth int
	header      []string
	steps       []translateStep
}

func newColumnPlan(header []string) (*columnPlan, error) {
	whitelist := make(map[string]bool, len(WhitelistColumns))
	for _, column := range WhitelistColumns {
		whitelist[column] = true
	}

	plan := &columnPlan{filterIndex: -1, headerWidth: len(header)}
	position := make(map[string]int)
	for i, raw := range header {
		name := strings.TrimSpace(raw)
		if !whitelist[name] {
			continue
		}
		if name == FilterColumn {
			plan.filterIndex = i
			continue
		}
		position[name] = len(plan.header)
		plan.sourceIndex = append(plan.sourceIndex, i)
		plan.header = append(plan.header, name)
	}

	if plan.filterIndex < 0 {
		return nil, fmt.Errorf("%w: %q", ErrFilterColumnMissing, FilterColumn)
	}

	for _, column := range TranslatedColumns {
		index, ok := position[column]
		if !ok {
			continue
		}
		step := translateStep{column: column, index: index, mode: translateReplace}
		switch {
		case column == ColumnMunicipality:
			step.mode = translateMunicipality
			plan.header = append(plan.header, ColumnUF, column+translatedSuffix)
		case appendedColumns[column]:
			step.mode = translateAppend
			plan.header = append(plan.header, column+translatedSuffix)
		}
		plan.steps = append(plan.steps, step)
	}

	return plan, nil
}

// keep reports whether a source record passes the active-link filter.
func (p *columnPlan) keep(record []string) bool {
	return p.filterIndex < len(record) && strings.TrimSpace(record[p.filterIndex]) == filterValue
}

// project copies the whitelisted values out of a source record.
func (p *columnPlan) project(record []string) []string {
	row := make([]string, len(p.sourceIndex), len(p.header))
	for i, src := range p.sourceIndex {
		if src < len(record) {
			row[i] = record[src]
		}
	}
	return row
}

func (p *columnPlan) translate(row []string, table *TranslationTable) []string {
	for _, step := range p.steps {
		code := strings.TrimSpace(row[step.index])
		row[step.index] = code

		switch step.mode {
		case translateMunicipality:
			row = append(row, table.Region(code), table.Place(code))
		case translateAppend:
			row = append(row, table.Translate(step.column, code))
		default:
			row[step.index] = table.Translate(step.column, code)
		}
	}

	for i, value := range row {
		row[i] = utils.CleanField(value, table.NotInformed())
	}
	return row
}

var (
	invalidHeaderChars = regexp.MustCompile(`[^0-9a-zA-Z_]`)
	repeatedUnderscore = regexp.MustCompile(`_+`)
)

// SanitizeHeader turns a column label into a warehouse-safe identifier:
// accents are dropped, other symbols become underscores.
func SanitizeHeader(name string) string {
	stripped, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		stripped = name
	}
	stripped = invalidHeaderChars.ReplaceAllString(stripped, "_")
	stripped = repeatedUnderscore.ReplaceAllString(stripped, "_")
	return strings.Trim(stripped, "_")
}

type TransformService struct {
	progress  *ProgressStore
	chunkSize int
	log       logger.Logger
}

func NewTransformService(progress *ProgressStore, chunkSize int) *TransformService {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return &TransformService{
		progress:  progress,
		chunkSize: chunkSize,
		log:       logger.New("transformService"),
	}
}

// TransformResult summarizes a completed transform.
type TransformResult struct {
	Records int64
	Batches int
	Bytes   int64
}

// Transform streams textPath into outputPath in batches of chunkSize records.
// Failures are recorded as PROCESSING_FAILED and are not retried.
func (s *TransformService) Transform(
	ctx context.Context,
	key models.FileKey,
	textPath, outputPath string,
	table *TranslationTable,
) bool {
	log := s.log.TraceFromContext(ctx).Function("Transform")

	if s.progress.GetStage(key).Reached(models.StageProcessed) && fileExists(outputPath) {
		log.Info("Output already produced, skipping", "file", key.Filename, "output", outputPath)
		return true
	}

	log.Info("Transforming", "file", key.Filename, "input", textPath, "chunkSize", s.chunkSize)

	result, err := s.run(ctx, key, textPath, outputPath, table)
	if err != nil {
		if removeErr := os.Remove(outputPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			log.Warn("Failed to remove partial output", "output", outputPath, "error", removeErr)
		}
		if Interrupted(ctx, err) {
			log.Info("Transform interrupted", "file", key.Filename)
			return false
		}
		s.progress.SetStage(ctx, key, models.StageProcessingFailed, false, models.ErrorInfo{
			Message: err.Error(),
		})
		return false
	}

	s.progress.SetStage(ctx, key, models.StageProcessed, true, models.ProcessingInfo{
		Records: result.Records,
		Chunks:  result.Batches,
		SizeMB:  models.SizeMB(result.Bytes),
	})
	log.Info("Transform complete",
		"file", key.Filename,
		"records", result.Records,
		"batches", result.Batches,
		"sizeMB", models.SizeMB(result.Bytes).String())
	return true
}

func (s *TransformService) run(
	ctx context.Context,
	key models.FileKey,
	textPath, outputPath string,
	table *TranslationTable,
) (TransformResult, error) {
	log := s.log.TraceFromContext(ctx).Function("run")

	input, err := os.Open(textPath)
	if err != nil {
		return TransformResult{}, log.Err("failed to open input", err, "input", textPath)
	}
	defer input.Close()

	reader := csv.NewReader(transform.NewReader(
		bufio.NewReaderSize(input, readBufferSize),
		charmap.ISO8859_1.NewDecoder(),
	))
	reader.Comma = fieldDelimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return TransformResult{}, log.Err("failed to read header", err, "input", textPath)
	}

	plan, err := newColumnPlan(header)
	if err != nil {
		return TransformResult{}, log.Err("unusable header", err, "input", textPath)
	}

	out := &batchWriter{path: outputPath, header: sanitizeAll(plan.header)}
	defer out.close()

	var result TransformResult
	batch := make([][]string, 0, min(s.chunkSize, 65536))
	line := 1

	flush := func() error {
		result.Batches++
		written, err := s.writeBatch(out, plan, batch, table)
		batch = batch[:0]
		if err != nil {
			return err
		}
		result.Records += written
		if result.Batches%progressLogEvery == 0 {
			log.Info("Transform progress",
				"file", key.Filename,
				"batches", result.Batches,
				"records", result.Records)
		}
		return nil
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return result, log.Err("failed to parse input", err, "input", textPath, "line", line)
		}
		if len(record) > plan.headerWidth {
			return result, log.Err("record has more fields than header",
				fmt.Errorf("line %d: %d fields, header has %d", line, len(record), plan.headerWidth),
				"input", textPath)
		}

		if !plan.keep(record) {
			batch = append(batch, nil)
		} else {
			batch = append(batch, plan.project(record))
		}

		if len(batch) >= s.chunkSize {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if err := flush(); err != nil {
				return result, log.Err("failed to write batch", err, "output", outputPath)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return result, log.Err("failed to write batch", err, "output", outputPath)
		}
	}

	if result.Records == 0 {
		return result, log.Err("nothing to load", ErrNoRecords, "input", textPath)
	}

	if err := out.close(); err != nil {
		return result, log.Err("failed to close output", err, "output", outputPath)
	}
	result.Bytes = fileSize(outputPath)
	return result, nil
}

// writeBatch translates the kept rows of a batch and appends them. Filtered-out
// records are nil entries and cost no I/O.
func (s *TransformService) writeBatch(
	out *batchWriter,
	plan *columnPlan,
	batch [][]string,
	table *TranslationTable,
) (int64, error) {
	var written int64
	for _, row := range batch {
		if row == nil {
			continue
		}
		if err := out.write(plan.translate(row, table)); err != nil {
			return written, err
		}
		written++
	}
	if written == 0 {
		return 0, nil
	}
	return written, out.flush()
}

func sanitizeAll(header []string) []string {
	sanitized := make([]string, len(header))
	for i, name := range header {
		sanitized[i] = SanitizeHeader(name)
	}
	return sanitized
}

// batchWriter creates the output lazily so a file with no kept rows never
// produces one. The first write truncates, emits a BOM and the header.
type batchWriter struct {
	path   string
	header []string
	file   *os.File
	buf    *bufio.Writer
	csv    *csv.Writer
}

func (w *batchWriter) open() error {
	if err := ensureDirectory(filepath.Dir(w.path)); err != nil {
		return err
	}
	file, err := os.Create(w.path)
	if err != nil {
		return err
	}
	w.file = file
	w.buf = bufio.NewWriterSize(file, readBufferSize)
	if _, err := w.buf.WriteString(utf8BOM); err != nil {
		return err
	}
	w.csv = csv.NewWriter(w.buf)
	w.csv.Comma = fieldDelimiter
	return w.csv.Write(w.header)
}

func (w *batchWriter) write(row []string) error {
	if w.file == nil {
		if err := w.open(); err != nil {
			return err
		}
	}
	return w.csv.Write(row)
}

func (w *batchWriter) flush() error {
	if w.csv == nil {
		return nil
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	return w.buf.Flush()
}

func (w *batchWriter) close() error {
	if w.file == nil {
		return nil
	}
	flushErr := w.flush()
	closeErr := w.file.Close()
	w.file, w.buf, w.csv = nil, nil, nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
