package playlistorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tunecrate/internal/logging"
	"tunecrate/internal/storage"
	"tunecrate/internal/utils"
)

const (
	fileExt    = ".json"
	tempPrefix = ".order-"
)

// OrderStore persists one ordered list of song ids per playlist as
// {playlistID}.json. Orders live independently of playlist membership and are
// never removed when the playlist is.
type OrderStore struct {
	root   string
	cache  Cache
	logger *zerolog.Logger
}

// NewOrderStore creates the store and its root directory. cache may be nil.
func NewOrderStore(root string, cache Cache, logger *zerolog.Logger) (*OrderStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("order store root is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create order store root %s: %w", root, err)
	}
	if logger == nil {
		logger = logging.WithModule("playlistorder")
	}

	return &OrderStore{root: root, cache: cache, logger: logger}, nil
}

func (s *OrderStore) path(playlistID int64) (string, error) {
	if playlistID <= 0 {
		return "", utils.NewInvalidInputError(fmt.Sprintf("invalid playlist id %d", playlistID), nil)
	}
	return storage.SafeJoin(s.root, strconv.FormatInt(playlistID, 10)+fileExt)
}

// Save atomically replaces the order of a playlist
func (s *OrderStore) Save(ctx context.Context, playlistID int64, songIDs []int64) error {
	path, err := s.path(playlistID)
	if err != nil {
		return err
	}

	if songIDs == nil {
		songIDs = []int64{}
	}
	data, err := json.Marshal(songIDs)
	if err != nil {
		return utils.NewGenericError("failed to encode playlist order", err)
	}

	if err := writeFileAtomic(s.root, path, data, 0644); err != nil {
		return utils.NewGenericError("failed to save playlist order", err)
	}

	s.invalidate(ctx, playlistID)
	return nil
}

// Get returns the saved order, or an empty slice when none was saved
func (s *OrderStore) Get(ctx context.Context, playlistID int64) ([]int64, error) {
	path, err := s.path(playlistID)
	if err != nil {
		return nil, err
	}

	// The generation is read before the file so a Save landing in between
	// makes the fill below a no-op
	var (
		generation int64
		fill       bool
	)
	if s.cache != nil {
		ids, ok, err := s.cache.Get(ctx, playlistID)
		switch {
		case err != nil:
			logging.FromContext(ctx, *s.logger).Warn().Err(err).Int64("playlist_id", playlistID).Msg("Order cache read failed")
		case ok:
			return ids, nil
		default:
			generation, err = s.cache.Generation(ctx, playlistID)
			if err != nil {
				logging.FromContext(ctx, *s.logger).Warn().Err(err).Int64("playlist_id", playlistID).Msg("Order cache read failed")
			} else {
				fill = true
			}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []int64{}, nil
		}
		return nil, utils.NewGenericError("failed to read playlist order", err)
	}

	ids := []int64{}
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, utils.NewGenericError(fmt.Sprintf("playlist order %d is corrupt", playlistID), err)
	}
	if ids == nil {
		ids = []int64{}
	}

	if fill {
		if _, err := s.cache.Fill(ctx, playlistID, generation, ids); err != nil {
			logging.FromContext(ctx, *s.logger).Warn().Err(err).Int64("playlist_id", playlistID).Msg("Order cache write failed")
		}
	}
	return ids, nil
}

// Delete removes the order of a playlist, reporting false when there was none
func (s *OrderStore) Delete(ctx context.Context, playlistID int64) (bool, error) {
	path, err := s.path(playlistID)
	if err != nil {
		return false, err
	}

	removed := true
	if err := os.Remove(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return false, utils.NewGenericError("failed to delete playlist order", err)
		}
		removed = false
	}

	s.invalidate(ctx, playlistID)
	return removed, nil
}

// Entry describes one saved order file
type Entry struct {
	PlaylistID int64
	ModTime    time.Time
}

// Entries returns the saved orders sorted by playlist id, skipping temp files
// and anything not named {id}.json
func (s *OrderStore) Entries() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, utils.NewGenericError("failed to list playlist orders", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, e := range dirEntries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, fileExt), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, utils.NewGenericError("failed to inspect playlist order", err)
		}
		entries = append(entries, Entry{PlaylistID: id, ModTime: info.ModTime()})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].PlaylistID < entries[j].PlaylistID })
	return entries, nil
}

// List returns the ids of playlists that have a saved order
func (s *OrderStore) List() ([]int64, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.PlaylistID
	}
	return ids, nil
}

func (s *OrderStore) invalidate(ctx context.Context, playlistID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, playlistID); err != nil {
		logging.FromContext(ctx, *s.logger).Warn().Err(err).Int64("playlist_id", playlistID).Msg("Order cache invalidation failed")
	}
}

// writeFileAtomic writes data next to path and renames it into place
func writeFileAtomic(dir, path string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name()) // no-op once renamed

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpFile.Name(), perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
