package channelserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/osetale/poslive/internal/platform/id"
)

// ChildStore provides bbolt-backed persistence for namespace children.
//
// Each namespace maps to one bucket. Push keys embed the bucket's monotonic
// sequence so lexical order equals push order.
type ChildStore struct {
	db *bbolt.DB
}

// OpenStore opens a channel child store at the provided path.
func OpenStore(path string) (*ChildStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open channel db: %w", err)
	}
	return &ChildStore{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *ChildStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append stores child under a fresh push key and returns the key.
func (s *ChildStore) Append(ctx context.Context, namespace string, child json.RawMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.db == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return "", fmt.Errorf("namespace is required")
	}
	if len(child) == 0 {
		return "", fmt.Errorf("child payload is required")
	}

	suffix, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate push key suffix: %w", err)
	}

	var key string
	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return fmt.Errorf("ensure namespace bucket: %w", err)
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("next push sequence: %w", err)
		}
		key = fmt.Sprintf("%012d-%s", seq, suffix[:8])
		return bucket.Put([]byte(key), child)
	})
	if err != nil {
		return "", fmt.Errorf("append child: %w", err)
	}
	return key, nil
}

// Delete removes a child by key. Absent keys are a no-op.
func (s *ChildStore) Delete(ctx context.Context, namespace string, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	namespace = strings.TrimSpace(namespace)
	key = strings.TrimSpace(key)
	if namespace == "" || key == "" {
		return fmt.Errorf("namespace and key are required")
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete child: %w", err)
	}
	return nil
}

// List returns all children in a namespace keyed by push key.
func (s *ChildStore) List(ctx context.Context, namespace string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}

	children := make(map[string]json.RawMessage)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(key, value []byte) error {
			child := make(json.RawMessage, len(value))
			copy(child, value)
			children[string(key)] = child
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return children, nil
}
