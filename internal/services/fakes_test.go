package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"raisloader/config"
	"raisloader/internal/models"
	"raisloader/internal/repositories"
)

type memoryProgressRepository struct {
	mu      sync.Mutex
	state   *models.ProgressState
	saves   int
	resets  int
	err     error
	history map[models.FileKey][]models.Stage
}

func (r *memoryProgressRepository) Location() string { return "memory" }

func (r *memoryProgressRepository) Load(ctx context.Context) (*models.ProgressState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return nil, repositories.ErrProgressNotFound
	}
	return r.state.Clone(), nil
}

func (r *memoryProgressRepository) Save(ctx context.Context, state *models.ProgressState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.err != nil {
		return r.err
	}
	r.state = state.Clone()

	if r.history == nil {
		r.history = make(map[models.FileKey][]models.Stage)
	}
	for key, file := range state.Files {
		seen := r.history[key]
		if len(seen) == 0 || seen[len(seen)-1] != file.Stage {
			r.history[key] = append(seen, file.Stage)
		}
	}
	return nil
}

// stages returns every distinct stage saved for key, in save order.
func (r *memoryProgressRepository) stages(key models.FileKey) []models.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Stage(nil), r.history[key]...)
}

func (r *memoryProgressRepository) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	r.state = nil
	return nil
}

func newTestProgress() (*ProgressStore, *memoryProgressRepository) {
	repo := &memoryProgressRepository{}
	return NewProgressStore(repo), repo
}

func newTestRetry(maxRetries int) (*RetryExecutor, *[]time.Duration) {
	var delays []time.Duration
	retry := NewRetryExecutor(maxRetries, 10*time.Second, 2)
	retry.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return retry, &delays
}

type fakeSource struct {
	mu        sync.Mutex
	periods   []string
	files     map[string][]string
	content   map[string][]byte
	failures  map[string][]error
	retrieved []string
	listCalls int
}

func (s *fakeSource) Ping(ctx context.Context) error { return nil }

func (s *fakeSource) ListPeriods(ctx context.Context) ([]string, error) {
	return s.periods, nil
}

func (s *fakeSource) ListFiles(ctx context.Context, period string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	return s.files[period], nil
}

func (s *fakeSource) Retrieve(ctx context.Context, period, filename string, w io.Writer) (int64, error) {
	s.mu.Lock()
	s.retrieved = append(s.retrieved, filename)
	if queue := s.failures[filename]; len(queue) > 0 {
		err := queue[0]
		s.failures[filename] = queue[1:]
		s.mu.Unlock()
		return 0, err
	}
	data := s.content[filename]
	s.mu.Unlock()

	return io.Copy(w, bytes.NewReader(data))
}

func (s *fakeSource) retrieveCount(filename string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, name := range s.retrieved {
		if name == filename {
			count++
		}
	}
	return count
}

// fakeExtractor writes the latin-1 text registered for an archive name.
type fakeExtractor struct {
	texts map[string][]byte
	err   error
	calls int
}

func (e *fakeExtractor) Extract(ctx context.Context, archivePath, destDir string) ([]string, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	text, ok := e.texts[filepath.Base(archivePath)]
	if !ok {
		return nil, nil
	}
	target := TextPath(destDir, filepath.Base(archivePath))
	if err := os.WriteFile(target, text, 0o644); err != nil {
		return nil, err
	}
	return []string{target}, nil
}

// cancelAfterExtract cancels the run as soon as the wrapped extractor returns.
type cancelAfterExtract struct {
	Extractor
	cancel context.CancelFunc
}

func (e *cancelAfterExtract) Extract(ctx context.Context, archivePath, destDir string) ([]string, error) {
	files, err := e.Extractor.Extract(ctx, archivePath, destDir)
	e.cancel()
	return files, err
}

type fakeWorkbook struct {
	sheets map[string][][]string
}

func (w *fakeWorkbook) Rows(sheet string) ([][]string, error) {
	rows, ok := w.sheets[sheet]
	if !ok {
		return nil, errors.New("sheet " + sheet + " does not exist")
	}
	return rows, nil
}

func (w *fakeWorkbook) Close() error { return nil }

func openerFor(workbook Workbook) WorkbookOpener {
	return func(path string) (Workbook, error) { return workbook, nil }
}

type recordedLoad struct {
	path        string
	table       TableRef
	disposition WriteDisposition
}

type fakeDestination struct {
	mu       sync.Mutex
	loads    []recordedLoad
	failures map[string][]error
	pingErr  error
	pinged   int
	rows     int64
}

func (d *fakeDestination) Ping(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pinged++
	return d.pingErr
}

func (d *fakeDestination) Load(ctx context.Context, req LoadRequest) (LoadJob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := filepath.Base(req.SourcePath)
	if queue := d.failures[name]; len(queue) > 0 {
		err := queue[0]
		d.failures[name] = queue[1:]
		return nil, err
	}
	if _, err := os.Stat(req.SourcePath); err != nil {
		return nil, err
	}

	d.loads = append(d.loads, recordedLoad{
		path:        req.SourcePath,
		table:       req.Table,
		disposition: req.Disposition,
	})
	d.rows += 10
	return completedJob{id: name}, nil
}

func (d *fakeDestination) RowCount(ctx context.Context, table TableRef) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rows, nil
}

func (d *fakeDestination) Close() error { return nil }

func (d *fakeDestination) touched() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pinged > 0 || len(d.loads) > 0
}

func testConfig(t interface{ TempDir() string }) config.Config {
	dir := t.TempDir()
	return config.Config{
		TempDir:           filepath.Join(dir, "tmp"),
		ProcessedDir:      filepath.Join(dir, "processed"),
		DictionaryPath:    filepath.Join(dir, "dict.xlsx"),
		NotInformed:       "N/I",
		ChunkSize:         3,
		DestinationDriver: config.DestinationDuckDB,
		TableNameTemplate: "{period}-12",
		MaxRetries:        2,
		RetryDelaySec:     10,
		BackoffMultiplier: 2,
	}
}
