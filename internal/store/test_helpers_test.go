package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/khatm/internal/khatm"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestTopic creates an active salavat topic with permissive bounds.
func createTestTopic(groupID, topicID int64) khatm.Topic {
	return khatm.Topic{
		Key:      khatm.Key{GroupID: groupID, TopicID: topicID},
		Name:     "test topic",
		Type:     khatm.TypeSalavat,
		MinBound: 1,
		MaxBound: 1000,
		IsActive: true,
	}
}

// mustUpdate runs fn in a committed transaction or fails the test.
func mustUpdate(t *testing.T, s *Store, fn func(tx khatm.Tx) error) {
	t.Helper()
	if err := s.Update(context.Background(), fn); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
}

// putTopics stores the given topics in one transaction.
func putTopics(t *testing.T, s *Store, topics ...khatm.Topic) {
	t.Helper()
	mustUpdate(t, s, func(tx khatm.Tx) error {
		for _, topic := range topics {
			if err := tx.PutTopic(context.Background(), topic); err != nil {
				return err
			}
		}
		return nil
	})
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(db *sql.DB, name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
