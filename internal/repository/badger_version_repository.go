package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"venture-plan-server/internal/domain"

	"github.com/dgraph-io/badger/v4"
)

const (
	versionKeyPrefix = "version/"
	versionIdxPrefix = "vidx/"
)

type BadgerVersionRepository struct {
	db *badger.DB
}

func NewBadgerVersionRepository(db *badger.DB) *BadgerVersionRepository {
	return &BadgerVersionRepository{db: db}
}

func versionKey(id string) []byte {
	return []byte(versionKeyPrefix + id)
}

func versionIdxPrefixFor(ventureID string) []byte {
	return []byte(versionIdxPrefix + ventureID + "/")
}

// Zero padding keeps lexical key order equal to numeric order.
func versionIdxKey(ventureID string, number int64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", versionIdxPrefix, ventureID, number))
}

func (r *BadgerVersionRepository) InsertVersion(ctx context.Context, in *domain.VersionRecordInput) (*domain.VersionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record := &domain.VersionRecord{
		ID:            domain.VersionID(in.VentureID, in.VersionNumber),
		VentureID:     in.VentureID,
		VersionNumber: in.VersionNumber,
		Label:         in.Label,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     in.CreatedAt.UTC(),
	}
	record.Snapshot.Root = in.Snapshot

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode version: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(versionKey(record.ID))
		switch {
		case err == nil:
			return fmt.Errorf("insert version %s: %w", record.ID, ErrConflict)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if err := txn.Set(versionKey(record.ID), data); err != nil {
			return err
		}
		return txn.Set(versionIdxKey(record.VentureID, record.VersionNumber), []byte(record.ID))
	})
	if err != nil {
		return nil, badgerError("insert version", err)
	}

	return record, nil
}

func (r *BadgerVersionRepository) LatestVersionNumber(ctx context.Context, ventureID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var latest int64
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := versionIdxPrefixFor(ventureID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(append(append([]byte{}, prefix...), 0xFF))
		if !it.ValidForPrefix(prefix) {
			return nil
		}

		n, err := parseIdxNumber(it.Item().Key(), prefix)
		if err != nil {
			return err
		}
		latest = n
		return nil
	})
	if err != nil {
		return 0, badgerError("latest version", err)
	}

	return latest, nil
}

func (r *BadgerVersionRepository) ListVersions(ctx context.Context, ventureID string, limit int) ([]*domain.VersionRecord, error) {
	versions := make([]*domain.VersionRecord, 0, limit)

	err := r.db.View(func(txn *badger.Txn) error {
		prefix := versionIdxPrefixFor(ventureID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(append([]byte{}, prefix...), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if len(versions) >= limit {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			record, err := loadVersion(txn, string(id))
			if err != nil {
				return err
			}
			if record.IsDeleted() {
				continue
			}
			versions = append(versions, record)
		}
		return nil
	})
	if err != nil {
		return nil, badgerError("list versions", err)
	}

	return versions, nil
}

func (r *BadgerVersionRepository) FindVersionByID(ctx context.Context, id string) (*domain.VersionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record *domain.VersionRecord
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		record, err = loadVersion(txn, id)
		return err
	})
	if err != nil {
		return nil, badgerError("get version", err)
	}

	return record, nil
}

func (r *BadgerVersionRepository) DeleteVersion(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		record, err := loadVersion(txn, id)
		if err != nil {
			return err
		}
		if record.IsDeleted() {
			return fmt.Errorf("delete version %s: %w", id, ErrNotFound)
		}

		now := time.Now().UTC()
		record.DeletedAt = &now

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to encode version: %w", err)
		}
		return txn.Set(versionKey(id), data)
	})
	if err != nil {
		return badgerError("delete version", err)
	}

	return nil
}

func loadVersion(txn *badger.Txn, id string) (*domain.VersionRecord, error) {
	item, err := txn.Get(versionKey(id))
	if err != nil {
		return nil, err
	}

	var record domain.VersionRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode version %s: %w", id, err)
	}

	return &record, nil
}

func parseIdxNumber(key, prefix []byte) (int64, error) {
	raw := strings.TrimPrefix(string(key), string(prefix))
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed version index key %q: %w", key, err)
	}
	return n, nil
}
