package services

import (
	"context"
	"io"
	"path"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/config"

	"github.com/jlaffaye/ftp"
)

// RemoteSource is the listing service that publishes one directory per period.
type RemoteSource interface {
	ListPeriods(ctx context.Context) ([]string, error)
	ListFiles(ctx context.Context, period string) ([]string, error)
	Retrieve(ctx context.Context, period, filename string, w io.Writer) (int64, error)
	Ping(ctx context.Context) error
}

var periodPattern = regexp.MustCompile(`^\d{4}`)

const archiveExtension = ".7z"

type FTPListingService struct {
	address  string
	basePath string
	timeout  time.Duration
	excluded []string
	log      logger.Logger
}

func NewFTPListingService(cfg config.Config) *FTPListingService {
	return &FTPListingService{
		address:  cfg.FTPAddress(),
		basePath: cfg.FTPBasePath,
		timeout:  cfg.FTPTimeout(),
		excluded: cfg.ExcludedFiles,
		log:      logger.New("ftpListingService"),
	}
}

// connect dials and logs in anonymously. Dial failures are always transient.
func (s *FTPListingService) connect(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(s.address, ftp.DialWithTimeout(s.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, MarkTransient(err)
	}

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		_ = conn.Quit()
		return nil, err
	}
	return conn, nil
}

func (s *FTPListingService) quit(conn *ftp.ServerConn, log logger.Logger) {
	if err := conn.Quit(); err != nil {
		log.Debug("FTP quit failed", "error", err)
	}
}

func (s *FTPListingService) Ping(ctx context.Context) error {
	log := s.log.TraceFromContext(ctx).Function("Ping")

	conn, err := s.connect(ctx)
	if err != nil {
		return log.Err("failed to connect to FTP server", err, "address", s.address)
	}
	defer s.quit(conn, log)

	if err := conn.NoOp(); err != nil {
		return log.Err("FTP server did not answer NOOP", MarkTransient(err), "address", s.address)
	}
	return nil
}

// ListPeriods returns the period directories, most recent first.
func (s *FTPListingService) ListPeriods(ctx context.Context) ([]string, error) {
	log := s.log.TraceFromContext(ctx).Function("ListPeriods")

	names, err := s.nameList(ctx, s.basePath)
	if err != nil {
		return nil, log.Err("failed to list periods", err, "path", s.basePath)
	}

	periods := filterPeriods(names)
	log.Info("Listed periods", "count", len(periods))
	return periods, nil
}

// ListFiles returns the archive names of a period, minus the excluded ones.
func (s *FTPListingService) ListFiles(ctx context.Context, period string) ([]string, error) {
	log := s.log.TraceFromContext(ctx).Function("ListFiles")

	dir := path.Join(s.basePath, period)
	names, err := s.nameList(ctx, dir)
	if err != nil {
		return nil, log.Err("failed to list files", err, "path", dir)
	}

	files := filterArchives(names, s.excluded)
	log.Info("Listed files", "period", period, "count", len(files), "excluded", len(s.excluded))
	return files, nil
}

func (s *FTPListingService) nameList(ctx context.Context, dir string) ([]string, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.quit(conn, s.log)

	names, err := conn.NameList(dir)
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Retrieve streams the remote archive into w and returns the bytes copied.
func (s *FTPListingService) Retrieve(
	ctx context.Context,
	period, filename string,
	w io.Writer,
) (int64, error) {
	log := s.log.TraceFromContext(ctx).Function("Retrieve")

	conn, err := s.connect(ctx)
	if err != nil {
		return 0, log.Err("failed to connect to FTP server", err, "address", s.address)
	}
	defer s.quit(conn, log)

	remotePath := path.Join(s.basePath, period, filename)
	resp, err := conn.Retr(remotePath)
	if err != nil {
		return 0, log.Err("failed to start transfer", err, "path", remotePath)
	}
	defer func() {
		if closeErr := resp.Close(); closeErr != nil {
			log.Debug("failed to close transfer", "error", closeErr, "path", remotePath)
		}
	}()

	written, err := io.Copy(w, contextReader{ctx: ctx, r: resp})
	if err != nil {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}
		return written, log.Err("transfer interrupted", MarkTransient(err),
			"path", remotePath,
			"bytes", written)
	}

	return written, nil
}

// contextReader stops a long copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func filterPeriods(names []string) []string {
	var periods []string
	for _, name := range names {
		base := path.Base(strings.TrimRight(name, "/"))
		if periodPattern.MatchString(base) && !slices.Contains(periods, base) {
			periods = append(periods, base)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(periods)))
	return periods
}

func filterArchives(names []string, excluded []string) []string {
	var files []string
	for _, name := range names {
		base := path.Base(name)
		if !strings.HasSuffix(base, archiveExtension) {
			continue
		}
		if slices.Contains(excluded, base) || slices.Contains(files, base) {
			continue
		}
		files = append(files, base)
	}
	return files
}
