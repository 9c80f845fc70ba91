package mimetypes

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"fitgent/domain"
)

// ContentTypeFor classifies a declared attachment into one of the message
// content types, based on the file name. Uploads happen out of band (object
// storage), so classification works from the declared name alone; anything
// unrecognized falls back to the generic file type.
func ContentTypeFor(fileName string) domain.ContentType {
	declared := mime.TypeByExtension(filepath.Ext(fileName))
	if declared == "" {
		return domain.ContentFile
	}

	// Canonicalize through the mimetype tree so aliases
	// (e.g. audio/x-wav) land on their standard form.
	resolved := mimetype.Lookup(declared)
	media := declared
	if resolved != nil {
		media = resolved.String()
	}

	switch {
	case strings.HasPrefix(media, "image/"):
		return domain.ContentImage
	case strings.HasPrefix(media, "video/"):
		return domain.ContentVideo
	case strings.HasPrefix(media, "audio/"):
		return domain.ContentAudio
	default:
		return domain.ContentFile
	}
}
