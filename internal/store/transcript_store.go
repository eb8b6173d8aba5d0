package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"chatcore/internal/types"
)

var bucketTranscripts = []byte("transcripts")

// TranscriptStore journals committed messages per session so past
// conversations stay inspectable locally after the client exits.
type TranscriptStore interface {
	Append(ctx context.Context, sessionID string, msg types.Message) error
	List(ctx context.Context, sessionID string) ([]types.Message, error)
	Clear(ctx context.Context, sessionID string) error
	Sessions(ctx context.Context) ([]string, error)
	Close() error
}

type BoltTranscriptStore struct {
	db *bolt.DB
}

func OpenBoltTranscriptStore(path string) (*BoltTranscriptStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("transcript db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTranscripts)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltTranscriptStore{db: db}, nil
}

func (s *BoltTranscriptStore) Append(ctx context.Context, sessionID string, msg types.Message) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("session id is required")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketTranscripts)
		bucket, err := root.CreateBucketIfNotExists([]byte(sessionID))
		if err != nil {
			return err
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return bucket.Put(key[:], data)
	})
}

func (s *BoltTranscriptStore) List(ctx context.Context, sessionID string) ([]types.Message, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, nil
	}
	var messages []types.Message
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTranscripts).Bucket([]byte(sessionID))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, value []byte) error {
			var msg types.Message
			if err := json.Unmarshal(value, &msg); err != nil {
				return nil
			}
			messages = append(messages, msg)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *BoltTranscriptStore) Clear(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketTranscripts)
		if root.Bucket([]byte(sessionID)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(sessionID))
	})
}

func (s *BoltTranscriptStore) Sessions(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTranscripts).ForEachBucket(func(name []byte) error {
			ids = append(ids, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *BoltTranscriptStore) Close() error {
	return s.db.Close()
}
