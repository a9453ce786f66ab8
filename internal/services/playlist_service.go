package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tunecrate/internal/database"
	"tunecrate/internal/logging"
	"tunecrate/internal/metrics"
	"tunecrate/internal/models"
	"tunecrate/internal/utils"
)

// PlaylistService manages playlists and their song memberships. Every
// mutation runs in its own transaction and starts with the ownership gate.
type PlaylistService struct {
	db      *gorm.DB
	logger  *zerolog.Logger
	metrics *metrics.Metrics
}

// NewPlaylistService creates a new playlist service
func NewPlaylistService(db *gorm.DB, logger *zerolog.Logger, m *metrics.Metrics) *PlaylistService {
	if logger == nil {
		logger = logging.WithModule("playlists")
	}
	if m == nil {
		m = metrics.Default()
	}
	return &PlaylistService{db: db, logger: logger, metrics: m}
}

// verifyAccessible is the ownership gate: NOT_FOUND when the playlist does
// not exist, ACCESS_DENIED when it belongs to someone else.
func (s *PlaylistService) verifyAccessible(tx *gorm.DB, playlistID int64, owner uuid.UUID) (*models.Playlist, error) {
	var playlist models.Playlist
	if err := tx.First(&playlist, playlistID).Error; err != nil {
		return nil, translateDBError(err, fmt.Sprintf("find playlist %d", playlistID), utils.KindGeneric, utils.KindGeneric)
	}
	if playlist.OwnerID != owner {
		return nil, utils.NewAccessDeniedError(fmt.Sprintf("playlist %d belongs to another owner", playlistID), nil)
	}
	return &playlist, nil
}

// CreatePlaylist creates a playlist with its initial songs. Either the
// playlist and all memberships are stored or nothing is.
func (s *PlaylistService) CreatePlaylist(ctx context.Context, name string, owner uuid.UUID, songIDs []*int64) (*models.PlaylistWithSongs, error) {
	var created *models.PlaylistWithSongs

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Playlist{}).Where("owner_id = ? AND name = ?", owner, name).Count(&existing).Error; err != nil {
			return translateDBError(err, "check playlist name", utils.KindGeneric, utils.KindGeneric)
		}
		if existing > 0 {
			return utils.NewNameAlreadyExistsError(fmt.Sprintf("playlist %q already exists", name), nil)
		}

		ids := make([]int64, 0, len(songIDs))
		seen := make(map[int64]struct{}, len(songIDs))
		for i, id := range songIDs {
			if id == nil {
				return utils.NewConstraintViolationError(fmt.Sprintf("song id at position %d is null", i), nil)
			}
			if _, dup := seen[*id]; dup {
				continue
			}
			seen[*id] = struct{}{}
			ids = append(ids, *id)
		}

		if len(ids) > 0 {
			var owned []int64
			err := tx.Model(&models.Song{}).
				Where("id IN ? AND owner_id = ?", ids, owner).
				Pluck("id", &owned).Error
			if err != nil {
				return translateDBError(err, "check songs", utils.KindGeneric, utils.KindGeneric)
			}
			ownedSet := make(map[int64]struct{}, len(owned))
			for _, id := range owned {
				ownedSet[id] = struct{}{}
			}
			for _, id := range ids {
				if _, ok := ownedSet[id]; !ok {
					return utils.NewNotFoundError(fmt.Sprintf("song %d not found", id), nil)
				}
			}
		}

		playlist := models.Playlist{Name: name, OwnerID: owner}
		if err := tx.Create(&playlist).Error; err != nil {
			return translateDBError(err, "create playlist", utils.KindNameAlreadyExists, utils.KindGeneric)
		}

		if len(ids) > 0 {
			memberships := make([]models.PlaylistSong, 0, len(ids))
			for _, id := range ids {
				memberships = append(memberships, models.PlaylistSong{PlaylistID: playlist.ID, SongID: id})
			}
			if err := tx.Create(&memberships).Error; err != nil {
				return translateDBError(err, "add playlist songs", utils.KindDuplicateEntry, utils.KindNotFound)
			}
		}

		created = &models.PlaylistWithSongs{Playlist: playlist, SongIDs: ids}
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "create playlist")
	}

	logging.FromContext(ctx, *s.logger).Info().
		Int64("playlist_id", created.ID).
		Int("songs", len(created.SongIDs)).
		Msg("Playlist created")
	return created, nil
}

// addSong inserts one membership after checking the song belongs to owner
func (s *PlaylistService) addSong(tx *gorm.DB, playlistID int64, owner uuid.UUID, songID int64) error {
	var owned int64
	if err := tx.Model(&models.Song{}).Where("id = ? AND owner_id = ?", songID, owner).Count(&owned).Error; err != nil {
		return translateDBError(err, "check song", utils.KindGeneric, utils.KindGeneric)
	}
	if owned == 0 {
		return utils.NewNotFoundError(fmt.Sprintf("song %d not found", songID), nil)
	}

	var member int64
	err := tx.Model(&models.PlaylistSong{}).
		Where("playlist_id = ? AND song_id = ?", playlistID, songID).
		Count(&member).Error
	if err != nil {
		return translateDBError(err, "check playlist membership", utils.KindGeneric, utils.KindGeneric)
	}
	if member > 0 {
		return utils.NewDuplicateEntryError(fmt.Sprintf("song %d is already in playlist %d", songID, playlistID), nil)
	}

	membership := models.PlaylistSong{PlaylistID: playlistID, SongID: songID}
	if err := tx.Create(&membership).Error; err != nil {
		return translateDBError(err, "add playlist song", utils.KindDuplicateEntry, utils.KindNotFound)
	}
	return nil
}

// AddSong adds one of the owner's songs to the playlist
func (s *PlaylistService) AddSong(ctx context.Context, playlistID int64, owner uuid.UUID, songID int64) error {
	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if _, err := s.verifyAccessible(tx, playlistID, owner); err != nil {
			return err
		}
		return s.addSong(tx, playlistID, owner, songID)
	})
	return asAppError(err, "add playlist song")
}

// AddSongsBulk adds several songs in one transaction. Songs that are already
// members are reported as duplicates and skipped; any other failure rolls
// back the whole batch.
func (s *PlaylistService) AddSongsBulk(ctx context.Context, playlistID int64, owner uuid.UUID, songIDs []int64) (*models.BulkAddResult, error) {
	result := &models.BulkAddResult{AddedIDs: []int64{}, DuplicateIDs: []int64{}}

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if _, err := s.verifyAccessible(tx, playlistID, owner); err != nil {
			return err
		}

		for i, songID := range songIDs {
			// A failed statement aborts a PostgreSQL transaction; the savepoint
			// keeps it usable after a duplicate.
			err := database.WithSavepoint(tx, fmt.Sprintf("bulk_add_%d", i), func(tx *gorm.DB) error {
				return s.addSong(tx, playlistID, owner, songID)
			})
			switch {
			case err == nil:
				result.AddedIDs = append(result.AddedIDs, songID)
			case utils.IsKind(err, utils.KindDuplicateEntry):
				result.DuplicateIDs = append(result.DuplicateIDs, songID)
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "add playlist songs")
	}

	if len(result.DuplicateIDs) > 0 {
		s.metrics.BulkAddDuplicatesTotal.Add(float64(len(result.DuplicateIDs)))
	}
	logging.FromContext(ctx, *s.logger).Debug().
		Int64("playlist_id", playlistID).
		Int("added", len(result.AddedIDs)).
		Int("duplicates", len(result.DuplicateIDs)).
		Msg("Bulk add finished")
	return result, nil
}

// RemoveSong removes a song from the playlist and reports whether it was a
// member. Removing a song that is not there is not an error.
func (s *PlaylistService) RemoveSong(ctx context.Context, playlistID int64, owner uuid.UUID, songID int64) (bool, error) {
	removed := false

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if _, err := s.verifyAccessible(tx, playlistID, owner); err != nil {
			return err
		}

		result := tx.Where("playlist_id = ? AND song_id = ?", playlistID, songID).Delete(&models.PlaylistSong{})
		if result.Error != nil {
			return translateDBError(result.Error, "remove playlist song", utils.KindGeneric, utils.KindGeneric)
		}
		removed = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, asAppError(err, "remove playlist song")
	}
	return removed, nil
}

// DeletePlaylist deletes the playlist; memberships are removed by the
// cascading foreign key. A saved song order is left in place.
func (s *PlaylistService) DeletePlaylist(ctx context.Context, playlistID int64, owner uuid.UUID) error {
	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if _, err := s.verifyAccessible(tx, playlistID, owner); err != nil {
			return err
		}

		result := tx.Delete(&models.Playlist{}, playlistID)
		if result.Error != nil {
			return translateDBError(result.Error, "delete playlist", utils.KindGeneric, utils.KindConstraintViolation)
		}
		if result.RowsAffected == 0 {
			return utils.NewNotFoundError(fmt.Sprintf("playlist %d not found", playlistID), nil)
		}
		return nil
	})
	return asAppError(err, "delete playlist")
}

// FindByID returns the owner's playlist with its member song ids
func (s *PlaylistService) FindByID(ctx context.Context, playlistID int64, owner uuid.UUID) (*models.PlaylistWithSongs, error) {
	db := s.db.WithContext(ctx)

	playlist, err := s.verifyAccessible(db, playlistID, owner)
	if err != nil {
		return nil, err
	}

	songIDs := []int64{}
	err = db.Model(&models.PlaylistSong{}).
		Where("playlist_id = ?", playlistID).
		Order("song_id ASC").
		Pluck("song_id", &songIDs).Error
	if err != nil {
		return nil, translateDBError(err, "list playlist songs", utils.KindGeneric, utils.KindGeneric)
	}

	return &models.PlaylistWithSongs{Playlist: *playlist, SongIDs: songIDs}, nil
}

// FindAllByOwner returns every playlist of owner with member song ids
func (s *PlaylistService) FindAllByOwner(ctx context.Context, owner uuid.UUID) ([]models.PlaylistWithSongs, error) {
	db := s.db.WithContext(ctx)

	var playlists []models.Playlist
	if err := db.Where("owner_id = ?", owner).Order("name ASC").Order("id ASC").Find(&playlists).Error; err != nil {
		return nil, translateDBError(err, "list playlists", utils.KindGeneric, utils.KindGeneric)
	}

	result := make([]models.PlaylistWithSongs, 0, len(playlists))
	if len(playlists) == 0 {
		return result, nil
	}

	ids := make([]int64, 0, len(playlists))
	for _, p := range playlists {
		ids = append(ids, p.ID)
	}

	var memberships []models.PlaylistSong
	err := db.Where("playlist_id IN ?", ids).
		Order("playlist_id ASC").
		Order("song_id ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, translateDBError(err, "list playlist songs", utils.KindGeneric, utils.KindGeneric)
	}

	byPlaylist := make(map[int64][]int64, len(playlists))
	for _, m := range memberships {
		byPlaylist[m.PlaylistID] = append(byPlaylist[m.PlaylistID], m.SongID)
	}

	for _, p := range playlists {
		songIDs := byPlaylist[p.ID]
		if songIDs == nil {
			songIDs = []int64{}
		}
		result = append(result, models.PlaylistWithSongs{Playlist: p, SongIDs: songIDs})
	}
	return result, nil
}
