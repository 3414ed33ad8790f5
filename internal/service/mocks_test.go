package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"venture-plan-server/internal/domain"
	"venture-plan-server/internal/repository"
	"venture-plan-server/pkg/plandoc"
)

type mockVersionRepo struct {
	mu       sync.Mutex
	versions map[string]*domain.VersionRecord

	// racing makes the next N inserts lose to a writer from another process.
	racing    int
	insertErr error
	lastLimit int
	// beforeLatest runs once, unlocked, at the start of the next
	// LatestVersionNumber call.
	beforeLatest func()
}

func newMockVersionRepo() *mockVersionRepo {
	return &mockVersionRepo{
		versions: make(map[string]*domain.VersionRecord),
	}
}

func (m *mockVersionRepo) InsertVersion(ctx context.Context, in *domain.VersionRecordInput) (*domain.VersionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil {
		return nil, m.insertErr
	}

	id := domain.VersionID(in.VentureID, in.VersionNumber)
	if m.racing > 0 {
		m.racing--
		m.versions[id] = &domain.VersionRecord{
			ID:            id,
			VentureID:     in.VentureID,
			VersionNumber: in.VersionNumber,
			Snapshot:      plandoc.NewDocument(plandoc.Null{}),
			CreatedBy:     "other-process",
			CreatedAt:     time.Now(),
		}
		return nil, fmt.Errorf("insert version: %w", repository.ErrConflict)
	}
	if _, exists := m.versions[id]; exists {
		return nil, fmt.Errorf("insert version: %w", repository.ErrConflict)
	}

	record := &domain.VersionRecord{
		ID:            id,
		VentureID:     in.VentureID,
		VersionNumber: in.VersionNumber,
		Label:         in.Label,
		Snapshot:      plandoc.NewDocument(in.Snapshot),
		CreatedBy:     in.CreatedBy,
		CreatedAt:     in.CreatedAt,
	}
	m.versions[id] = record

	copied := *record
	return &copied, nil
}

func (m *mockVersionRepo) LatestVersionNumber(ctx context.Context, ventureID string) (int64, error) {
	m.mu.Lock()
	hook := m.beforeLatest
	m.beforeLatest = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var latest int64
	for _, v := range m.versions {
		if v.VentureID == ventureID && v.VersionNumber > latest {
			latest = v.VersionNumber
		}
	}
	return latest, nil
}

func (m *mockVersionRepo) ListVersions(ctx context.Context, ventureID string, limit int) ([]*domain.VersionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastLimit = limit

	var out []*domain.VersionRecord
	for _, v := range m.versions {
		if v.VentureID == ventureID && !v.IsDeleted() {
			copied := *v
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].VersionNumber > out[j].VersionNumber
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockVersionRepo) FindVersionByID(ctx context.Context, id string) (*domain.VersionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, exists := m.versions[id]
	if !exists {
		return nil, fmt.Errorf("get version: %w", repository.ErrNotFound)
	}
	copied := *v
	return &copied, nil
}

func (m *mockVersionRepo) DeleteVersion(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, exists := m.versions[id]
	if !exists || v.IsDeleted() {
		return fmt.Errorf("delete version: %w", repository.ErrNotFound)
	}
	now := time.Now()
	v.DeletedAt = &now
	return nil
}

func (m *mockVersionRepo) count(ventureID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, v := range m.versions {
		if v.VentureID == ventureID {
			n++
		}
	}
	return n
}

type mockVentureRepo struct {
	mu       sync.Mutex
	ventures map[string]*domain.Venture

	updateStateErr error
}

func newMockVentureRepo() *mockVentureRepo {
	return &mockVentureRepo{
		ventures: make(map[string]*domain.Venture),
	}
}

func (m *mockVentureRepo) Create(ctx context.Context, venture *domain.Venture) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.ventures[venture.ID]; exists {
		return repository.ErrConflict
	}
	copied := *venture
	m.ventures[venture.ID] = &copied
	return nil
}

func (m *mockVentureRepo) FindByID(ctx context.Context, id string) (*domain.Venture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, exists := m.ventures[id]
	if !exists {
		return nil, fmt.Errorf("get venture: %w", repository.ErrNotFound)
	}
	copied := *v
	copied.Collaborators = append([]domain.Collaborator(nil), v.Collaborators...)
	return &copied, nil
}

func (m *mockVentureRepo) ListByMember(ctx context.Context, userID string) ([]*domain.Venture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Venture
	for _, v := range m.ventures {
		if v.CanRead(userID) {
			copied := *v
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockVentureRepo) UpdateState(ctx context.Context, id string, state plandoc.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateStateErr != nil {
		return m.updateStateErr
	}
	v, exists := m.ventures[id]
	if !exists {
		return fmt.Errorf("update venture state: %w", repository.ErrNotFound)
	}
	v.State = plandoc.NewDocument(state)
	return nil
}

func (m *mockVentureRepo) AddCollaborator(ctx context.Context, id string, c domain.Collaborator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, exists := m.ventures[id]
	if !exists {
		return fmt.Errorf("add collaborator: %w", repository.ErrNotFound)
	}
	for i := range v.Collaborators {
		if v.Collaborators[i].UserID == c.UserID {
			v.Collaborators[i].Role = c.Role
			return nil
		}
	}
	v.Collaborators = append(v.Collaborators, c)
	return nil
}

func (m *mockVentureRepo) state(id string) plandoc.Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ventures[id].State.Value()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.VentureEvent
}

func (p *recordingPublisher) PublishVentureEvent(event domain.VentureEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
