package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"venture-plan-server/internal/domain"
	"venture-plan-server/pkg/plandoc"

	"github.com/dgraph-io/badger/v4"
)

const (
	ventureKeyPrefix = "venture/"
	memberKeyPrefix  = "member/"
)

type BadgerVentureRepository struct {
	db *badger.DB
}

func NewBadgerVentureRepository(db *badger.DB) *BadgerVentureRepository {
	return &BadgerVentureRepository{db: db}
}

func ventureKey(id string) []byte {
	return []byte(ventureKeyPrefix + id)
}

func memberKey(userID, ventureID string) []byte {
	return []byte(memberKeyPrefix + userID + "/" + ventureID)
}

func (r *BadgerVentureRepository) Create(ctx context.Context, venture *domain.Venture) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(venture)
	if err != nil {
		return fmt.Errorf("failed to encode venture: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(ventureKey(venture.ID))
		switch {
		case err == nil:
			return fmt.Errorf("create venture %s: %w", venture.ID, ErrConflict)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if err := txn.Set(ventureKey(venture.ID), data); err != nil {
			return err
		}
		if err := txn.Set(memberKey(venture.OwnerID, venture.ID), nil); err != nil {
			return err
		}
		for _, c := range venture.Collaborators {
			if err := txn.Set(memberKey(c.UserID, venture.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return badgerError("create venture", err)
	}

	return nil
}

func (r *BadgerVentureRepository) FindByID(ctx context.Context, id string) (*domain.Venture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var venture *domain.Venture
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		venture, err = loadVenture(txn, id)
		return err
	})
	if err != nil {
		return nil, badgerError("get venture", err)
	}

	return venture, nil
}

func (r *BadgerVentureRepository) ListByMember(ctx context.Context, userID string) ([]*domain.Venture, error) {
	var ventures []*domain.Venture

	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(memberKeyPrefix + userID + "/")
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			ventureID := string(it.Item().Key()[len(prefix):])
			v, err := loadVenture(txn, ventureID)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			ventures = append(ventures, v)
		}
		return nil
	})
	if err != nil {
		return nil, badgerError("list ventures", err)
	}

	return ventures, nil
}

func (r *BadgerVentureRepository) UpdateState(ctx context.Context, id string, state plandoc.Value) error {
	return r.update(ctx, "update venture state", id, func(txn *badger.Txn, v *domain.Venture) error {
		v.State = plandoc.NewDocument(state)
		return nil
	})
}

func (r *BadgerVentureRepository) AddCollaborator(ctx context.Context, id string, collaborator domain.Collaborator) error {
	return r.update(ctx, "add collaborator", id, func(txn *badger.Txn, v *domain.Venture) error {
		v.Collaborators = upsertCollaborator(v.Collaborators, collaborator)
		return txn.Set(memberKey(collaborator.UserID, id), nil)
	})
}

func (r *BadgerVentureRepository) update(ctx context.Context, op, id string, mutate func(*badger.Txn, *domain.Venture) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		v, err := loadVenture(txn, id)
		if err != nil {
			return err
		}
		if err := mutate(txn, v); err != nil {
			return err
		}
		v.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode venture: %w", err)
		}
		return txn.Set(ventureKey(id), data)
	})
	if err != nil {
		return badgerError(op, err)
	}

	return nil
}

func loadVenture(txn *badger.Txn, id string) (*domain.Venture, error) {
	item, err := txn.Get(ventureKey(id))
	if err != nil {
		return nil, err
	}

	var v domain.Venture
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &v)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode venture %s: %w", id, err)
	}

	return &v, nil
}
