package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"venture-plan-server/internal/domain"
	"venture-plan-server/pkg/plandoc"

	"github.com/go-kivik/kivik/v4"
)

// VentureRepository owns ventures, their membership and their live plan
// state. UpdateState is the setter a restore writes through.
type VentureRepository interface {
	Create(ctx context.Context, venture *domain.Venture) error
	FindByID(ctx context.Context, id string) (*domain.Venture, error)
	ListByMember(ctx context.Context, userID string) ([]*domain.Venture, error)
	UpdateState(ctx context.Context, id string, state plandoc.Value) error
	AddCollaborator(ctx context.Context, id string, collaborator domain.Collaborator) error
}

const ventureDocType = "venture"

type ventureDoc struct {
	ID            string                `json:"_id"`
	Rev           string                `json:"_rev,omitempty"`
	DocType       string                `json:"doc_type"`
	OwnerID       string                `json:"owner_id"`
	Name          string                `json:"name"`
	Collaborators []domain.Collaborator `json:"collaborators"`
	State         plandoc.Document      `json:"state"`
	CreatedAt     string                `json:"created_at"`
	UpdatedAt     string                `json:"updated_at"`
}

type CouchDBVentureRepository struct {
	db *kivik.DB
}

func NewVentureRepository(client *kivik.Client, dbName string) *CouchDBVentureRepository {
	return &CouchDBVentureRepository{
		db: client.DB(dbName),
	}
}

func ventureDocID(id string) string {
	return "venture:" + id
}

func (r *CouchDBVentureRepository) Create(ctx context.Context, venture *domain.Venture) error {
	doc := ventureToDoc(venture)

	if _, err := r.db.Put(ctx, doc.ID, doc); err != nil {
		return couchError("create venture", err)
	}

	return nil
}

func (r *CouchDBVentureRepository) FindByID(ctx context.Context, id string) (*domain.Venture, error) {
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return docToVenture(doc)
}

func (r *CouchDBVentureRepository) ListByMember(ctx context.Context, userID string) ([]*domain.Venture, error) {
	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"doc_type": ventureDocType,
			"$or": []interface{}{
				map[string]interface{}{"owner_id": userID},
				map[string]interface{}{
					"collaborators": map[string]interface{}{
						"$elemMatch": map[string]interface{}{"user_id": userID},
					},
				},
			},
		},
		"limit": 500,
	}

	rows := r.db.Find(ctx, query)
	defer rows.Close()

	var ventures []*domain.Venture
	for rows.Next() {
		var doc ventureDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan venture: %w", err)
		}

		v, err := docToVenture(&doc)
		if err != nil {
			return nil, err
		}
		ventures = append(ventures, v)
	}
	if err := rows.Err(); err != nil {
		return nil, couchError("list ventures", err)
	}

	return ventures, nil
}

func (r *CouchDBVentureRepository) UpdateState(ctx context.Context, id string, state plandoc.Value) error {
	doc, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	doc.State = plandoc.NewDocument(state)
	doc.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := r.db.Put(ctx, doc.ID, doc); err != nil {
		return couchError("update venture state", err)
	}

	return nil
}

func (r *CouchDBVentureRepository) AddCollaborator(ctx context.Context, id string, collaborator domain.Collaborator) error {
	doc, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	doc.Collaborators = upsertCollaborator(doc.Collaborators, collaborator)
	doc.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := r.db.Put(ctx, doc.ID, doc); err != nil {
		return couchError("add collaborator", err)
	}

	return nil
}

func (r *CouchDBVentureRepository) get(ctx context.Context, id string) (*ventureDoc, error) {
	var doc ventureDoc
	if err := r.db.Get(ctx, ventureDocID(id)).ScanDoc(&doc); err != nil {
		return nil, couchError("get venture", err)
	}
	if doc.DocType != ventureDocType {
		return nil, fmt.Errorf("get venture: %w", ErrNotFound)
	}
	return &doc, nil
}

func upsertCollaborator(list []domain.Collaborator, c domain.Collaborator) []domain.Collaborator {
	for i := range list {
		if list[i].UserID == c.UserID {
			list[i].Role = c.Role
			return list
		}
	}
	return append(list, c)
}

func ventureToDoc(v *domain.Venture) ventureDoc {
	return ventureDoc{
		ID:            ventureDocID(v.ID),
		DocType:       ventureDocType,
		OwnerID:       v.OwnerID,
		Name:          v.Name,
		Collaborators: v.Collaborators,
		State:         v.State,
		CreatedAt:     v.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     v.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func docToVenture(doc *ventureDoc) (*domain.Venture, error) {
	createdAt, err := parseTime(doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	updatedAt, err := parseTime(doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &domain.Venture{
		ID:            strings.TrimPrefix(doc.ID, "venture:"),
		OwnerID:       doc.OwnerID,
		Name:          doc.Name,
		Collaborators: doc.Collaborators,
		State:         doc.State,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}
