package storage

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/dhowden/tag"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	_ "golang.org/x/image/webp"
)

// Domains of the two content stores
const (
	DomainAudio = "audio"
	DomainImage = "image"
)

// ContentType maps a sniffed MIME type to the extension stored files get
type ContentType struct {
	MIME      string
	Extension string
}

// AudioTypes is the audio store allow-list
var AudioTypes = []ContentType{
	{MIME: "audio/mpeg", Extension: ".mp3"},
	{MIME: "audio/wav", Extension: ".wav"},
	{MIME: "audio/flac", Extension: ".flac"},
	{MIME: "audio/ogg", Extension: ".ogg"},
	{MIME: "audio/x-m4a", Extension: ".m4a"},
	{MIME: "audio/mp4", Extension: ".m4a"},
	{MIME: "audio/aac", Extension: ".aac"},
}

// ImageTypes is the image store allow-list
var ImageTypes = []ContentType{
	{MIME: "image/jpeg", Extension: ".jpg"},
	{MIME: "image/png", Extension: ".png"},
	{MIME: "image/gif", Extension: ".gif"},
	{MIME: "image/webp", Extension: ".webp"},
}

// ImageLimits bounds decoded image dimensions. Zero disables a limit.
type ImageLimits struct {
	MaxWidth  int
	MaxHeight int
	MaxPixels int64
}

// lookupType matches a sniffed type (or one of its aliases) against the allow-list
func lookupType(detected *mimetype.MIME, allowed []ContentType) (ContentType, bool) {
	for _, ct := range allowed {
		if detected.Is(ct.MIME) {
			return ct, true
		}
	}
	return ContentType{}, false
}

// verifyStructure checks that the content parses as the sniffed type.
// Signature sniffing only looks at the first bytes; this catches files that
// carry a valid magic number in front of garbage.
func verifyStructure(ct ContentType, r io.ReadSeeker, limits ImageLimits) error {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}

	switch ct.MIME {
	case "audio/wav":
		if !wav.NewDecoder(r).IsValidFile() {
			return fmt.Errorf("not a valid WAV stream")
		}
	case "audio/mpeg":
		if _, err := mp3.NewDecoder(r); err != nil {
			return fmt.Errorf("not a valid MPEG audio stream: %w", err)
		}
	case "audio/flac", "audio/ogg", "audio/x-m4a", "audio/mp4":
		format, _, err := tag.Identify(r)
		if err != nil {
			return fmt.Errorf("unrecognised audio container: %w", err)
		}
		if format == tag.UnknownFormat {
			return fmt.Errorf("unrecognised audio container")
		}
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		cfg, _, err := image.DecodeConfig(r)
		if err != nil {
			return fmt.Errorf("failed to decode image header: %w", err)
		}
		return checkImageLimits(cfg, limits)
	}

	return nil
}

func checkImageLimits(cfg image.Config, limits ImageLimits) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("image has no pixels")
	}
	if limits.MaxWidth > 0 && cfg.Width > limits.MaxWidth {
		return fmt.Errorf("image width %d exceeds maximum %d", cfg.Width, limits.MaxWidth)
	}
	if limits.MaxHeight > 0 && cfg.Height > limits.MaxHeight {
		return fmt.Errorf("image height %d exceeds maximum %d", cfg.Height, limits.MaxHeight)
	}
	if limits.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > limits.MaxPixels {
		return fmt.Errorf("image has %d pixels, maximum is %d", int64(cfg.Width)*int64(cfg.Height), limits.MaxPixels)
	}
	return nil
}
