package domain

import (
	"fmt"
	"time"

	"venture-plan-server/pkg/plandoc"
)

// VersionRecord is an immutable checkpoint of a venture's plan. DeletedAt is
// set once the creator deletes it; deleted records are neither listed nor
// restorable, but their numbers are never reused.
type VersionRecord struct {
	ID            string           `json:"id"`
	VentureID     string           `json:"venture_id"`
	VersionNumber int64            `json:"version_number"`
	Label         string           `json:"label,omitempty"`
	Snapshot      plandoc.Document `json:"snapshot"`
	CreatedBy     string           `json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
	DeletedAt     *time.Time       `json:"deleted_at,omitempty"`
}

func (r *VersionRecord) IsDeleted() bool {
	return r.DeletedAt != nil
}

type VersionRecordInput struct {
	VentureID     string
	VersionNumber int64
	Label         string
	Snapshot      plandoc.Value
	CreatedBy     string
	CreatedAt     time.Time
}

// VersionID is the store key of a venture's n-th version. Two writers racing
// for the same number collide on this key.
func VersionID(ventureID string, number int64) string {
	return fmt.Sprintf("version:%s:%d", ventureID, number)
}

type CreateVersionRequest struct {
	Label    string            `json:"label" validate:"max=120"`
	Snapshot *plandoc.Document `json:"snapshot,omitempty"`
}

type CompareRequest struct {
	Before plandoc.Document `json:"before"`
	After  plandoc.Document `json:"after"`
}

type RestoreResult struct {
	Checkpoint *VersionRecord `json:"checkpoint"`
	Restored   *VersionRecord `json:"restored"`
}
