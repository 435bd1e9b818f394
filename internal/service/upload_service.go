package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"

	"github.com/rs/zerolog"

	"oceanstella/api/internal/ids"
	"oceanstella/api/internal/media/sniffer"
	"oceanstella/api/internal/models"
)

type AvatarStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	URL(key string) string
}

type UploadService struct {
	store    AvatarStore
	maxBytes int64
	log      zerolog.Logger
}

func NewUploadService(store AvatarStore, maxBytes int64, log zerolog.Logger) *UploadService {
	return &UploadService{
		store:    store,
		maxBytes: maxBytes,
		log:      log,
	}
}

// UploadAvatar stores a raster image for userID and returns the reference to
// put on the profile. The format is decided from the content, never from the
// client's declared type.
func (s *UploadService) UploadAvatar(ctx context.Context, userID string, file io.Reader, declaredSize int64) (models.Avatar, error) {
	if s.store == nil {
		return models.Avatar{}, ErrUploadDisabled
	}
	if declaredSize > s.maxBytes {
		return models.Avatar{}, ErrUploadTooLarge
	}

	format, head, err := sniffer.Detect(file)
	if err != nil {
		if errors.Is(err, sniffer.ErrUnknownFormat) {
			return models.Avatar{}, ErrUnsupportedImage
		}
		return models.Avatar{}, ErrUploadFailed.Wrap(err)
	}
	if !format.Raster() {
		return models.Avatar{}, ErrUnsupportedImage
	}

	data, err := io.ReadAll(io.LimitReader(io.MultiReader(bytes.NewReader(head), file), s.maxBytes+1))
	if err != nil {
		return models.Avatar{}, ErrUploadFailed.Wrap(err)
	}
	if int64(len(data)) > s.maxBytes {
		return models.Avatar{}, ErrUploadTooLarge
	}

	key := path.Join("avatars", userID, ids.New()+format.Ext())
	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), format.MIME); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("avatar upload failed")
		return models.Avatar{}, ErrUploadFailed.Wrap(err)
	}

	s.log.Info().Str("user_id", userID).Str("public_id", key).Int("bytes", len(data)).Msg("avatar uploaded")
	return models.Avatar{URL: s.store.URL(key), PublicID: key}, nil
}
