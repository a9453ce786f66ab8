package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Album represents the albums table. Names are unique per owner, ignoring case.
type Album struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	NameNormalized string    `gorm:"size:255;not null;uniqueIndex:idx_albums_owner_name,priority:2" json:"-"`
	Year           int       `gorm:"not null;index:idx_albums_owner_year,priority:2" json:"year"`
	Artist         string    `gorm:"size:255;not null" json:"artist"`
	ImageRef       *string   `gorm:"size:512" json:"image_ref,omitempty"` // stored name in the image store
	OwnerID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_albums_owner_name,priority:1;index:idx_albums_owner_year,priority:1" json:"owner_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Album) TableName() string {
	return "albums"
}

// BeforeSave keeps the normalized name in sync for the case-insensitive unique index
func (a *Album) BeforeSave(tx *gorm.DB) error {
	a.NameNormalized = NormalizeName(a.Name)
	return nil
}

// Song represents the songs table
type Song struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	AlbumID   int64     `gorm:"index:idx_songs_album_id;not null" json:"album_id"`
	Year      int       `json:"year"`
	Genre     string    `gorm:"size:100" json:"genre"`
	AudioRef  string    `gorm:"size:512;not null" json:"audio_ref"` // stored name in the audio store
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index:idx_songs_owner_id" json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`

	// Relationships
	Album *Album `gorm:"foreignKey:AlbumID;constraint:OnDelete:RESTRICT" json:"album,omitempty"`
}

func (Song) TableName() string {
	return "songs"
}

// Playlist represents the playlists table. Names are unique per owner.
type Playlist struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:255;not null;uniqueIndex:idx_playlists_owner_name,priority:2" json:"name"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_playlists_owner_name,priority:1" json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Playlist) TableName() string {
	return "playlists"
}

// PlaylistSong represents the playlist_songs junction table
type PlaylistSong struct {
	PlaylistID int64 `gorm:"primaryKey;autoIncrement:false" json:"playlist_id"`
	SongID     int64 `gorm:"primaryKey;autoIncrement:false;index:idx_playlist_songs_song_id" json:"song_id"`

	// Relationships
	Playlist *Playlist `gorm:"foreignKey:PlaylistID;constraint:OnDelete:CASCADE" json:"-"`
	Song     *Song     `gorm:"foreignKey:SongID;constraint:OnDelete:CASCADE" json:"-"`
}

func (PlaylistSong) TableName() string {
	return "playlist_songs"
}

// AlbumUpdate carries a partial album update. Nil fields are left untouched.
type AlbumUpdate struct {
	Name     *string
	Year     *int
	Artist   *string
	ImageRef *string
}

// IsEmpty reports whether no field is set
func (u AlbumUpdate) IsEmpty() bool {
	return u.Name == nil && u.Year == nil && u.Artist == nil && u.ImageRef == nil
}

// SongWithAlbum is the song projection joined with its album
type SongWithAlbum struct {
	Song  Song  `json:"song"`
	Album Album `json:"album"`
}

// PlaylistWithSongs is a playlist hydrated with its unordered member song ids
type PlaylistWithSongs struct {
	Playlist
	SongIDs []int64 `json:"song_ids"`
}

// BulkAddResult reports which songs a bulk add inserted and which were already members
type BulkAddResult struct {
	AddedIDs     []int64 `json:"added_ids"`
	DuplicateIDs []int64 `json:"duplicate_ids"`
}

// NormalizeName is the comparison key for case-insensitive album names
func NormalizeName(name string) string {
	return strings.ToLower(name)
}
