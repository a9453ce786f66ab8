package services

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"tunecrate/internal/database"
	"tunecrate/internal/logging"
	"tunecrate/internal/metrics"
	"tunecrate/internal/models"
	"tunecrate/internal/saga"
	"tunecrate/internal/tracing"
	"tunecrate/internal/utils"
)

// ContentStore is the part of a file store the song saga needs
type ContentStore interface {
	Store(ctx context.Context, r io.Reader, claimedName string) (string, error)
	Delete(ctx context.Context, name string) (bool, error)
}

// CreateSongRequest carries a new song with its upload. The album is looked
// up by name among the owner's albums and created when missing.
type CreateSongRequest struct {
	Owner uuid.UUID

	Title string
	Year  int
	Genre string

	Audio     io.Reader
	AudioName string

	AlbumName string
	AlbumYear int
	Artist    string

	// Optional cover, only used when a new album is created
	Image     io.Reader
	ImageName string
}

// SongCreationService stores the uploaded files and writes the album and
// song rows. Files are outside the database transaction, so every file
// written is recorded on an undo stack and removed again if the rows cannot
// be committed.
type SongCreationService struct {
	db      *gorm.DB
	audio   ContentStore
	image   ContentStore
	albums  *AlbumRepository
	songs   *SongRepository
	logger  *zerolog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewSongCreationService creates a new song creation service
func NewSongCreationService(db *gorm.DB, audio, image ContentStore, logger *zerolog.Logger, m *metrics.Metrics) *SongCreationService {
	if logger == nil {
		logger = logging.WithModule("song_creation")
	}
	if m == nil {
		m = metrics.Default()
	}
	return &SongCreationService{
		db:      db,
		audio:   audio,
		image:   image,
		albums:  NewAlbumRepository(db),
		songs:   NewSongRepository(db),
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("tunecrate/services"),
	}
}

// CreateSong runs the saga. On failure the transaction is rolled back
// first, then the files written by this call are deleted newest first. The
// returned error is always the one that stopped the saga.
func (s *SongCreationService) CreateSong(ctx context.Context, req CreateSongRequest) (*models.SongWithAlbum, error) {
	if req.Audio == nil {
		return nil, utils.NewInvalidInputError("audio content is required", nil)
	}
	if req.Owner == uuid.Nil {
		return nil, utils.NewInvalidInputError("owner is required", nil)
	}

	ctx = logging.ContextWithOwnerID(ctx, req.Owner)
	ctx, span := s.tracer.Start(ctx, "SongCreationService.CreateSong", trace.WithAttributes(tracing.OwnerAttrs(req.Owner)...))
	defer span.End()

	start := time.Now()
	log := logging.FromContext(ctx, *s.logger)
	tracker := saga.NewTracker()
	undo := saga.NewCompensator(log)
	undo.OnFailure(func(step string, err error) {
		s.metrics.CompensationFailuresTotal.WithLabelValues(step).Inc()
	})

	advance := func(state saga.State) {
		if err := tracker.Advance(state); err != nil {
			log.Error().Err(err).Msg("Unexpected saga transition")
		}
		span.AddEvent(string(state))
	}

	var created *models.SongWithAlbum
	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		albums := s.albums.WithTx(tx)
		songs := s.songs.WithTx(tx)

		audioName, err := s.storeFile(ctx, "audio", s.audio, req.Audio, req.AudioName)
		if err != nil {
			return err
		}
		undo.Push("delete audio", s.deleteFile(s.audio, audioName))
		advance(saga.StateAudioSaved)

		album, err := albums.FindAlbumByName(ctx, req.Owner, req.AlbumName)
		switch {
		case err == nil:
			// Existing album: its image predates this call and is never compensated
		case utils.IsKind(err, utils.KindNotFound):
			var imageRef *string
			if req.Image != nil {
				imageName, err := s.storeFile(ctx, "image", s.image, req.Image, req.ImageName)
				if err != nil {
					return err
				}
				undo.Push("delete image", s.deleteFile(s.image, imageName))
				advance(saga.StateImageSaved)
				imageRef = &imageName
			}

			// No undo record: the row disappears with the rollback
			album, err = albums.CreateAlbum(ctx, req.AlbumName, req.AlbumYear, req.Artist, imageRef, req.Owner)
			if err != nil {
				return err
			}
		default:
			return err
		}
		advance(saga.StateAlbumResolved)

		song, err := songs.CreateSong(ctx, req.Title, album.ID, req.Year, req.Genre, audioName, req.Owner)
		if err != nil {
			return err
		}
		advance(saga.StateSongInserted)

		created = &models.SongWithAlbum{Song: *song, Album: *album}
		return nil
	})

	if err != nil {
		reached := tracker.Current()
		failedUndo := undo.Unwind(ctx)
		advance(saga.StateAborted)

		s.metrics.SagaOutcomesTotal.WithLabelValues(string(saga.StateAborted), string(reached)).Inc()
		s.metrics.SagaDurationSeconds.WithLabelValues(string(saga.StateAborted)).Observe(time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.String("saga.reached_state", string(reached)),
			attribute.Int("saga.failed_undo_steps", failedUndo),
		)
		log.Warn().
			Err(err).
			Str("reached_state", string(reached)).
			Int("failed_undo_steps", failedUndo).
			Msg("Song creation aborted")
		return nil, asAppError(err, "create song")
	}

	advance(saga.StateCommitted)
	s.metrics.SagaOutcomesTotal.WithLabelValues(string(saga.StateCommitted), string(saga.StateSongInserted)).Inc()
	s.metrics.SagaDurationSeconds.WithLabelValues(string(saga.StateCommitted)).Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int64("song.id", created.Song.ID),
		attribute.Int64("album.id", created.Album.ID),
	)
	log.Info().
		Int64("song_id", created.Song.ID).
		Int64("album_id", created.Album.ID).
		Msg("Song created")
	return created, nil
}

func (s *SongCreationService) storeFile(ctx context.Context, kind string, store ContentStore, r io.Reader, claimedName string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "SongCreationService.store_"+kind)
	defer span.End()

	name, err := store.Store(ctx, r, claimedName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("stored_name", name))
	return name, nil
}

func (s *SongCreationService) deleteFile(store ContentStore, name string) saga.UndoFunc {
	return func(ctx context.Context) error {
		_, err := store.Delete(ctx, name)
		return err
	}
}
