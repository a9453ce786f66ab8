package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"tunecrate/internal/config"
	"tunecrate/internal/logging"
	"tunecrate/internal/metrics"
	"tunecrate/internal/utils"
)

// tempPrefix marks in-flight uploads; List never reports them
const tempPrefix = ".upload-"

// Options configures a FileStore
type Options struct {
	Domain            string // "audio" or "image"; the sniffed top-level type must match
	Root              string
	AllowList         []ContentType
	MaxBytes          int64
	MaxBaseNameLength int
	VerifyStructure   bool
	ImageLimits       ImageLimits
	Logger            *zerolog.Logger
	Metrics           *metrics.Metrics
}

// StoredFile describes a file accepted by a store
type StoredFile struct {
	Name        string
	ContentType string
	Size        int64
}

// Entry is a file currently held by a store
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// FileStore keeps uploaded binaries in one flat directory. Names are
// generated, so concurrent writers never need to coordinate.
type FileStore struct {
	opts    Options
	logger  *zerolog.Logger
	metrics *metrics.Metrics
}

// NewFileStore creates a store and its root directory
func NewFileStore(opts Options) (*FileStore, error) {
	if opts.Domain == "" {
		return nil, fmt.Errorf("store domain is required")
	}
	if strings.TrimSpace(opts.Root) == "" {
		return nil, fmt.Errorf("store root is required")
	}
	if len(opts.AllowList) == 0 {
		return nil, fmt.Errorf("store allow-list is empty")
	}
	if opts.MaxBaseNameLength <= 0 {
		opts.MaxBaseNameLength = 64
	}
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root %s: %w", opts.Root, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.WithModule("storage")
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Default()
	}

	return &FileStore{opts: opts, logger: logger, metrics: m}, nil
}

// NewAudioStore creates the audio store from configuration
func NewAudioStore(cfg config.StorageConfig, logger *zerolog.Logger) (*FileStore, error) {
	return NewFileStore(Options{
		Domain:            DomainAudio,
		Root:              cfg.AudioRoot(),
		AllowList:         AudioTypes,
		MaxBytes:          cfg.MaxAudioBytes,
		MaxBaseNameLength: cfg.MaxBaseNameLength,
		VerifyStructure:   cfg.VerifyStructure,
		Logger:            logger,
	})
}

// NewImageStore creates the image store from configuration
func NewImageStore(cfg config.StorageConfig, logger *zerolog.Logger) (*FileStore, error) {
	return NewFileStore(Options{
		Domain:            DomainImage,
		Root:              cfg.ImageRoot(),
		AllowList:         ImageTypes,
		MaxBytes:          cfg.MaxImageBytes,
		MaxBaseNameLength: cfg.MaxBaseNameLength,
		VerifyStructure:   cfg.VerifyStructure,
		ImageLimits: ImageLimits{
			MaxWidth:  cfg.MaxImageWidth,
			MaxHeight: cfg.MaxImageHeight,
			MaxPixels: int64(cfg.MaxImagePixels),
		},
		Logger: logger,
	})
}

// Domain returns the store's content domain
func (s *FileStore) Domain() string {
	return s.opts.Domain
}

// Root returns the store's root directory
func (s *FileStore) Root() string {
	return s.opts.Root
}

// Store validates and persists r, returning the generated stored name
func (s *FileStore) Store(ctx context.Context, r io.Reader, claimedName string) (string, error) {
	stored, err := s.Put(ctx, r, claimedName)
	if err != nil {
		return "", err
	}
	return stored.Name, nil
}

// Put is Store returning the detected content type and size as well
func (s *FileStore) Put(ctx context.Context, r io.Reader, claimedName string) (StoredFile, error) {
	if strings.TrimSpace(claimedName) == "" {
		s.reject(ctx, claimedName, "", "blank_name")
		return StoredFile{}, utils.NewInvalidInputError("file name is required", nil)
	}

	tmp, err := os.CreateTemp(s.opts.Root, tempPrefix+"*")
	if err != nil {
		return StoredFile{}, utils.NewGenericError("failed to create temporary file", err)
	}
	tmpPath := tmp.Name()
	moved := false
	defer func() {
		tmp.Close()
		if !moved {
			if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn().Err(err).Str("path", tmpPath).Msg("Failed to remove temporary upload")
			}
		}
	}()

	limit := s.opts.MaxBytes
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	size, err := io.Copy(tmp, src)
	if err != nil {
		return StoredFile{}, utils.NewGenericError("failed to write upload", err)
	}
	if limit > 0 && size > limit {
		s.reject(ctx, claimedName, "", "too_large")
		return StoredFile{}, utils.NewInvalidInputError(fmt.Sprintf("upload exceeds maximum size of %d bytes", limit), nil)
	}
	if size == 0 {
		s.reject(ctx, claimedName, "", "empty")
		return StoredFile{}, utils.NewInvalidContentError("upload is empty", nil)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return StoredFile{}, utils.NewGenericError("failed to rewind upload", err)
	}
	detected, err := mimetype.DetectReader(tmp)
	if err != nil {
		return StoredFile{}, utils.NewGenericError("failed to sniff content type", err)
	}

	if !strings.HasPrefix(detected.String(), s.opts.Domain+"/") {
		s.reject(ctx, claimedName, detected.String(), "wrong_domain")
		return StoredFile{}, utils.NewInvalidContentError(
			fmt.Sprintf("content type %s is not %s content", detected.String(), s.opts.Domain), nil)
	}
	ct, ok := lookupType(detected, s.opts.AllowList)
	if !ok {
		s.reject(ctx, claimedName, detected.String(), "not_allowed")
		return StoredFile{}, utils.NewInvalidContentError(
			fmt.Sprintf("content type %s is not accepted", detected.String()), nil)
	}

	if s.opts.VerifyStructure {
		if err := verifyStructure(ct, tmp, s.opts.ImageLimits); err != nil {
			s.reject(ctx, claimedName, ct.MIME, "malformed")
			return StoredFile{}, utils.NewInvalidContentError(
				fmt.Sprintf("content is not a valid %s file", ct.MIME), err)
		}
	}

	if err := tmp.Sync(); err != nil {
		return StoredFile{}, utils.NewGenericError("failed to flush upload", err)
	}
	if err := tmp.Close(); err != nil {
		return StoredFile{}, utils.NewGenericError("failed to close upload", err)
	}

	name := buildStoredName(SanitizeBaseName(claimedName, s.opts.MaxBaseNameLength), ct.Extension)
	finalPath, err := SafeJoin(s.opts.Root, name)
	if err != nil {
		return StoredFile{}, err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return StoredFile{}, utils.NewGenericError("failed to move upload into place", err)
	}
	moved = true

	s.metrics.UploadsStoredTotal.WithLabelValues(s.opts.Domain, ct.MIME).Inc()
	s.metrics.UploadBytes.WithLabelValues(s.opts.Domain).Observe(float64(size))
	logging.FromContext(ctx, *s.logger).Debug().
		Str("store", s.opts.Domain).
		Str("name", name).
		Str("content_type", ct.MIME).
		Int64("size", size).
		Msg("Stored upload")

	return StoredFile{Name: name, ContentType: ct.MIME, Size: size}, nil
}

// Delete removes a stored file. It reports false when the file was already
// absent. Names are validated and contained to the root before any
// filesystem access. A name that is a symlink removes the link, never its
// target.
func (s *FileStore) Delete(ctx context.Context, name string) (bool, error) {
	path, _, err := locate(s.opts.Root, name)
	if err != nil {
		return false, err
	}

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, utils.NewGenericError("failed to inspect stored file", err)
	}
	if info.IsDir() {
		return false, utils.NewAccessDeniedError("stored name refers to a directory", nil)
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, utils.NewGenericError("failed to delete stored file", err)
	}

	s.metrics.FilesDeletedTotal.WithLabelValues(s.opts.Domain).Inc()
	logging.FromContext(ctx, *s.logger).Debug().
		Str("store", s.opts.Domain).
		Str("name", name).
		Msg("Deleted stored file")
	return true, nil
}

// Path resolves a stored name to its validated location on disk
func (s *FileStore) Path(name string) (string, error) {
	return SafeJoin(s.opts.Root, name)
}

// Open opens a stored file for reading
func (s *FileStore) Open(name string) (*os.File, error) {
	path, err := SafeJoin(s.opts.Root, name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, utils.NewNotFoundError("stored file not found", err)
		}
		return nil, utils.NewGenericError("failed to open stored file", err)
	}
	return f, nil
}

// Exists reports whether a stored file is present
func (s *FileStore) Exists(name string) (bool, error) {
	path, err := SafeJoin(s.opts.Root, name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, utils.NewGenericError("failed to inspect stored file", err)
	}
	return true, nil
}

// List returns the stored files sorted by name, skipping in-flight uploads
func (s *FileStore) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.opts.Root)
	if err != nil {
		return nil, utils.NewGenericError("failed to list store", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, utils.NewGenericError("failed to inspect stored file", err)
		}
		entries = append(entries, Entry{Name: de.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *FileStore) reject(ctx context.Context, claimedName, detectedType, reason string) {
	s.metrics.UploadsRejectedTotal.WithLabelValues(s.opts.Domain, reason).Inc()
	logging.NewLoggerFrom(logging.FromContext(ctx, *s.logger)).
		LogRejectedUpload(s.opts.Domain, filepath.Base(claimedName), detectedType, reason)
}
