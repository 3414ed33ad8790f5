package repository

import (
	"context"
	"fmt"
	"time"

	"venture-plan-server/internal/domain"
	"venture-plan-server/pkg/plandoc"

	"github.com/go-kivik/kivik/v4"
)

// VersionRepository persists immutable venture checkpoints.
type VersionRepository interface {
	// InsertVersion fails with ErrConflict when the venture already has a
	// record with the same number.
	InsertVersion(ctx context.Context, in *domain.VersionRecordInput) (*domain.VersionRecord, error)
	// LatestVersionNumber counts deleted records too; 0 means none exist.
	LatestVersionNumber(ctx context.Context, ventureID string) (int64, error)
	// ListVersions returns live records, newest first.
	ListVersions(ctx context.Context, ventureID string, limit int) ([]*domain.VersionRecord, error)
	FindVersionByID(ctx context.Context, id string) (*domain.VersionRecord, error)
	// DeleteVersion tombstones a record.
	DeleteVersion(ctx context.Context, id string) error
}

const versionDocType = "version"

type versionDoc struct {
	ID            string           `json:"_id"`
	Rev           string           `json:"_rev,omitempty"`
	DocType       string           `json:"doc_type"`
	VentureID     string           `json:"venture_id"`
	VersionNumber int64            `json:"version_number"`
	Label         string           `json:"label,omitempty"`
	Snapshot      plandoc.Document `json:"snapshot"`
	CreatedBy     string           `json:"created_by"`
	CreatedAt     string           `json:"created_at"`
	DeletedAt     string           `json:"deleted_at,omitempty"`
}

type CouchDBVersionRepository struct {
	db *kivik.DB
}

func NewVersionRepository(client *kivik.Client, dbName string) *CouchDBVersionRepository {
	return &CouchDBVersionRepository{
		db: client.DB(dbName),
	}
}

// EnsureIndexes creates the Mango index used for per-venture ordering.
func (r *CouchDBVersionRepository) EnsureIndexes(ctx context.Context) error {
	index := map[string]interface{}{
		"fields": []string{"doc_type", "venture_id", "version_number"},
	}
	if err := r.db.CreateIndex(ctx, "versions", "by_venture_number", index); err != nil {
		return couchError("create version index", err)
	}
	return nil
}

func (r *CouchDBVersionRepository) InsertVersion(ctx context.Context, in *domain.VersionRecordInput) (*domain.VersionRecord, error) {
	doc := versionDoc{
		ID:            domain.VersionID(in.VentureID, in.VersionNumber),
		DocType:       versionDocType,
		VentureID:     in.VentureID,
		VersionNumber: in.VersionNumber,
		Label:         in.Label,
		Snapshot:      plandoc.NewDocument(in.Snapshot),
		CreatedBy:     in.CreatedBy,
		CreatedAt:     in.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	if _, err := r.db.Put(ctx, doc.ID, doc); err != nil {
		return nil, couchError("insert version", err)
	}

	return docToVersion(&doc)
}

func (r *CouchDBVersionRepository) LatestVersionNumber(ctx context.Context, ventureID string) (int64, error) {
	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"doc_type":       versionDocType,
			"venture_id":     ventureID,
			"version_number": map[string]interface{}{"$gt": 0},
		},
		"sort":   versionSortDesc(),
		"fields": []string{"version_number"},
		"limit":  1,
	}

	rows := r.db.Find(ctx, query)
	defer rows.Close()

	var latest int64
	if rows.Next() {
		var doc struct {
			VersionNumber int64 `json:"version_number"`
		}
		if err := rows.ScanDoc(&doc); err != nil {
			return 0, fmt.Errorf("failed to scan latest version: %w", err)
		}
		latest = doc.VersionNumber
	}
	if err := rows.Err(); err != nil {
		return 0, couchError("query latest version", err)
	}

	return latest, nil
}

func (r *CouchDBVersionRepository) ListVersions(ctx context.Context, ventureID string, limit int) ([]*domain.VersionRecord, error) {
	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"doc_type":       versionDocType,
			"venture_id":     ventureID,
			"version_number": map[string]interface{}{"$gt": 0},
			"deleted_at":     map[string]interface{}{"$exists": false},
		},
		"sort":  versionSortDesc(),
		"limit": limit,
	}

	rows := r.db.Find(ctx, query)
	defer rows.Close()

	versions := make([]*domain.VersionRecord, 0, limit)
	for rows.Next() {
		var doc versionDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}

		v, err := docToVersion(&doc)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, couchError("list versions", err)
	}

	return versions, nil
}

func (r *CouchDBVersionRepository) FindVersionByID(ctx context.Context, id string) (*domain.VersionRecord, error) {
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return docToVersion(doc)
}

func (r *CouchDBVersionRepository) DeleteVersion(ctx context.Context, id string) error {
	doc, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	if doc.DeletedAt != "" {
		return fmt.Errorf("delete version: %w", ErrNotFound)
	}

	doc.DeletedAt = time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := r.db.Put(ctx, doc.ID, doc); err != nil {
		return couchError("delete version", err)
	}

	return nil
}

func (r *CouchDBVersionRepository) get(ctx context.Context, id string) (*versionDoc, error) {
	var doc versionDoc
	if err := r.db.Get(ctx, id).ScanDoc(&doc); err != nil {
		return nil, couchError("get version", err)
	}
	if doc.DocType != versionDocType {
		return nil, fmt.Errorf("get version: %w", ErrNotFound)
	}
	return &doc, nil
}

func versionSortDesc() []map[string]string {
	return []map[string]string{
		{"doc_type": "desc"},
		{"venture_id": "desc"},
		{"version_number": "desc"},
	}
}

func docToVersion(doc *versionDoc) (*domain.VersionRecord, error) {
	createdAt, err := parseTime(doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	v := &domain.VersionRecord{
		ID:            doc.ID,
		VentureID:     doc.VentureID,
		VersionNumber: doc.VersionNumber,
		Label:         doc.Label,
		Snapshot:      doc.Snapshot,
		CreatedBy:     doc.CreatedBy,
		CreatedAt:     createdAt,
	}

	if doc.DeletedAt != "" {
		deletedAt, err := parseTime(doc.DeletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse deleted_at: %w", err)
		}
		v.DeletedAt = &deletedAt
	}

	return v, nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
