package photos

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/fiocam/panel/internal/platform/storage"
)

// Service aggregates and exports site photos.
type Service struct {
	repo   Repository
	signer storage.Signer
	opener storage.Opener
	bucket string
	ttl    time.Duration
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

// Options configures a Service.
type Options struct {
	Bucket   string
	TTL      time.Duration
	Location *time.Location
}

// NewService builds a Service. signer and opener may be nil; photos are then
// listed without links and exports fail.
func NewService(repo Repository, signer storage.Signer, opener storage.Opener, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	return &Service{
		repo:   repo,
		signer: signer,
		opener: opener,
		bucket: opts.Bucket,
		ttl:    opts.TTL,
		loc:    opts.Location,
		logger: logger,
		now:    time.Now,
	}
}

// Summaries returns one row per site with total, today, yesterday and last
// capture. Days are calendar days in the configured location.
func (s *Service) Summaries(ctx context.Context, search string) ([]Summary, error) {
	obras, err := s.repo.Obras(ctx, strings.TrimSpace(search))
	if err != nil {
		return nil, err
	}
	captures, err := s.repo.Captures(ctx)
	if err != nil {
		return nil, err
	}
	counts := Bucket(captures, s.now(), s.loc)
	out := make([]Summary, len(obras))
	for i, o := range obras {
		sum := counts[o.ID]
		sum.Obra = o
		out[i] = sum
	}
	return out, nil
}

// Bucket counts captures per site. A capture is counted as today or
// yesterday, never both.
func Bucket(captures []Capture, now time.Time, loc *time.Location) map[string]Summary {
	local := now.In(loc)
	startToday := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	startTomorrow := startToday.AddDate(0, 0, 1)
	startYesterday := startToday.AddDate(0, 0, -1)

	out := make(map[string]Summary)
	for _, c := range captures {
		sum := out[c.ObraID]
		sum.Total++
		switch {
		case !c.TomadoEn.Before(startToday) && c.TomadoEn.Before(startTomorrow):
			sum.Hoy++
		case !c.TomadoEn.Before(startYesterday) && c.TomadoEn.Before(startToday):
			sum.Ayer++
		}
		if c.TomadoEn.After(sum.Ultima) {
			sum.Ultima = c.TomadoEn.In(loc)
		}
		out[c.ObraID] = sum
	}
	return out
}

// Gallery returns the photos of a site newest first with signed links.
func (s *Service) Gallery(ctx context.Context, obraID string) (Gallery, error) {
	obra, err := s.repo.Obra(ctx, obraID)
	if err != nil {
		return Gallery{}, err
	}
	fotos, err := s.repo.Fotos(ctx, obraID)
	if err != nil {
		return Gallery{}, err
	}
	if s.signer != nil && len(fotos) > 0 {
		keys := make([]string, len(fotos))
		for i, f := range fotos {
			keys[i] = f.StoragePath
		}
		urls, err := storage.SignAll(ctx, s.signer, s.bucket, keys, s.ttl)
		if err != nil {
			return Gallery{}, err
		}
		for i := range fotos {
			fotos[i].URL = urls[i]
		}
	}
	for i := range fotos {
		if !fotos[i].TomadoEn.IsZero() {
			fotos[i].TomadoEn = fotos[i].TomadoEn.In(s.loc)
		}
	}
	return Gallery{Obra: obra, Fotos: fotos}, nil
}

// Export writes every photo of a site into a ZIP archive on w. Objects that
// cannot be read are skipped and logged; the number written is returned.
func (s *Service) Export(ctx context.Context, obraID string, w io.Writer) (int, error) {
	if s.opener == nil {
		return 0, fmt.Errorf("photos: export requires object storage")
	}
	fotos, err := s.repo.Fotos(ctx, obraID)
	if err != nil {
		return 0, err
	}
	zw := zip.NewWriter(w)
	used := make(map[string]bool, len(fotos))
	written := 0
	for _, f := range fotos {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if err := s.copyInto(ctx, zw, entryName(f, used), f); err != nil {
			s.logger.Warn("export photo", slog.String("path", f.StoragePath), slog.Any("error", err))
			continue
		}
		written++
	}
	if err := zw.Close(); err != nil {
		return written, err
	}
	return written, nil
}

func (s *Service) copyInto(ctx context.Context, zw *zip.Writer, name string, f Foto) error {
	body, err := s.opener.Open(ctx, s.bucket, f.StoragePath)
	if err != nil {
		return err
	}
	defer body.Close()
	header := &zip.FileHeader{Name: name, Method: zip.Store}
	if !f.TomadoEn.IsZero() {
		header.Modified = f.TomadoEn
	}
	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, body)
	return err
}

// entryName keeps archive names unique: a taken name gets a numeric suffix
// before its extension, counting up until the result is free.
func entryName(f Foto, used map[string]bool) string {
	name := strings.ReplaceAll(f.FileName(), "/", "_")
	if name == "" {
		name = f.ID
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 2; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
	used[candidate] = true
	return candidate
}

// Obra returns a site by id.
func (s *Service) Obra(ctx context.Context, id string) (Obra, error) {
	return s.repo.Obra(ctx, id)
}
