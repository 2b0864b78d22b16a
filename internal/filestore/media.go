package filestore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"parley/internal/models"

	"github.com/h2non/filetype"
)

const (
	DefaultMaxBytes = 10 << 20
	mediaRoute      = "/media/"
	fallbackMime    = "application/octet-stream"
)

var (
	ErrEmptyMedia    = errors.New("media is empty")
	ErrMediaTooLarge = errors.New("media is too large")
)

type metaStore interface {
	UpsertMedia(meta models.Media) error
	GetMedia(id string) (models.Media, error)
}

type Config struct {
	BaseURL  string
	MaxBytes int64
}

// Upload is one media blob received from a client.
type Upload struct {
	Name   string
	Data   []byte
	UserID uint64
	RoomID string
}

// MediaStore stores uploaded media and builds the URLs they are served from.
type MediaStore struct {
	Config
	blobs BlobStore
	meta  metaStore
	now   func() time.Time
}

func NewMediaStore(config Config, blobs BlobStore, meta metaStore) *MediaStore {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &MediaStore{
		Config: config,
		blobs:  blobs,
		meta:   meta,
		now:    time.Now,
	}
}

// Sniff returns the MIME type detected from the leading bytes of data.
func Sniff(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return fallbackMime
	}
	return kind.MIME.Value
}

// Save stores u under its name and returns the URL it is served from.
// Identical content is kept once on disk.
func (m *MediaStore) Save(u Upload) (string, error) {
	if u.Name == "" {
		return "", errors.New("media name is required")
	}
	if len(u.Data) == 0 {
		return "", ErrEmptyMedia
	}
	if int64(len(u.Data)) > m.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrMediaTooLarge, len(u.Data), m.MaxBytes)
	}

	sum := sha256.Sum256(u.Data)
	hash := hex.EncodeToString(sum[:])
	if err := m.blobs.Put(hash, bytes.NewReader(u.Data)); err != nil {
		return "", fmt.Errorf("failed to store media blob: %w", err)
	}

	err := m.meta.UpsertMedia(models.Media{
		ID:        u.Name,
		Hash:      hash,
		Name:      u.Name,
		MimeType:  Sniff(u.Data),
		Size:      int64(len(u.Data)),
		CreatedAt: m.now().Unix(),
		UserID:    u.UserID,
		RoomID:    u.RoomID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store media metadata: %w", err)
	}
	return m.URL(u.Name), nil
}

// URL returns the download URL of media id.
func (m *MediaStore) URL(id string) string {
	return m.BaseURL + mediaRoute + url.PathEscape(id)
}

// Open returns the metadata and content of media id.
func (m *MediaStore) Open(id string) (models.Media, io.ReadCloser, error) {
	meta, err := m.meta.GetMedia(id)
	if err != nil {
		return models.Media{}, nil, err
	}
	r, err := m.blobs.Open(meta.Hash)
	if errors.Is(err, ErrBlobNotFound) {
		return models.Media{}, nil, fmt.Errorf("media %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Media{}, nil, err
	}
	return meta, r, nil
}
