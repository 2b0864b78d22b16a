package storage

import (
	"fmt"

	"parley/internal/models"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

type DBMedia struct {
	ID        string `msgpack:"id"`
	Hash      string `msgpack:"hash"`
	Name      string `msgpack:"name"`
	MimeType  string `msgpack:"mimeType"`
	Size      int64  `msgpack:"size"`
	CreatedAt int64  `msgpack:"createdAt"`
	UserID    uint64 `msgpack:"userId"`
	RoomID    string `msgpack:"roomId"`
}

func (f *DBMedia) Key() []byte {
	return []byte(f.ID)
}

func (f *DBMedia) MarshalBinary() (data []byte, err error) {
	type alias DBMedia
	return msgpack.Marshal((*alias)(f))
}

func (f *DBMedia) UnmarshalBinary(data []byte) error {
	type alias DBMedia
	return msgpack.Unmarshal(data, (*alias)(f))
}

func (s *BboltStorage) UpsertMedia(meta models.Media) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMedia)
		dbMedia := DBMedia(meta)
		data, err := dbMedia.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal media metadata: %w", err)
		}
		return b.Put(dbMedia.Key(), data)
	})
}

func (s *BboltStorage) GetMedia(id string) (models.Media, error) {
	var meta DBMedia
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMedia).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("media %s: %w", id, models.ErrNotFound)
		}
		return meta.UnmarshalBinary(data)
	})
	if err != nil {
		return models.Media{}, err
	}
	return models.Media(meta), nil
}
