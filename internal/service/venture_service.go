package service

import (
	"context"
	"strings"
	"time"

	"venture-plan-server/internal/domain"
	"venture-plan-server/internal/repository"
	"venture-plan-server/pkg/plandoc"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type VentureService struct {
	repo   repository.VentureRepository
	locks  *VentureLocks
	events EventPublisher
	logger zerolog.Logger
}

func NewVentureService(repo repository.VentureRepository, locks *VentureLocks, events EventPublisher, logger zerolog.Logger) *VentureService {
	if locks == nil {
		locks = NewVentureLocks()
	}
	return &VentureService{
		repo:   repo,
		locks:  locks,
		events: events,
		logger: logger.With().Str("component", "ventures").Logger(),
	}
}

func (s *VentureService) Create(ctx context.Context, userID string, req *domain.CreateVentureRequest) (*domain.Venture, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validationError("name is required")
	}

	now := time.Now().UTC()
	venture := &domain.Venture{
		ID:            uuid.New().String(),
		OwnerID:       userID,
		Name:          name,
		Collaborators: []domain.Collaborator{},
		State:         plandoc.NewDocument(req.State.Value()),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, venture); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("venture_id", venture.ID).
		Str("user_id", userID).
		Msg("venture created")

	return venture, nil
}

func (s *VentureService) List(ctx context.Context, userID string) ([]*domain.Venture, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	ventures, err := s.repo.ListByMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ventures == nil {
		ventures = []*domain.Venture{}
	}
	return ventures, nil
}

func (s *VentureService) Get(ctx context.Context, userID, ventureID string) (*domain.Venture, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	venture, err := s.repo.FindByID(ctx, ventureID)
	if err != nil {
		return nil, err
	}
	if !venture.CanRead(userID) {
		return nil, ErrUnauthorized
	}

	return venture, nil
}

// CanAccess reports whether userID may watch ventureID's events.
func (s *VentureService) CanAccess(ctx context.Context, userID, ventureID string) error {
	_, err := s.Get(ctx, userID, ventureID)
	return err
}

// UpdateState replaces the live plan. It does not create a version. It waits
// for any checkpoint or restore in progress on the same venture.
func (s *VentureService) UpdateState(ctx context.Context, userID, ventureID string, state plandoc.Value) (*domain.Venture, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	unlock := s.locks.lock(ventureID)
	defer unlock()

	venture, err := s.Get(ctx, userID, ventureID)
	if err != nil {
		return nil, err
	}
	if !venture.CanWrite(userID) {
		return nil, ErrUnauthorized
	}

	if err := s.repo.UpdateState(ctx, ventureID, state); err != nil {
		return nil, err
	}

	venture.State = plandoc.NewDocument(state)
	venture.UpdatedAt = time.Now().UTC()

	publish(s.events, domain.VentureEvent{
		Type:      domain.EventStateUpdated,
		VentureID: ventureID,
		ActorID:   userID,
		At:        venture.UpdatedAt,
	})

	return venture, nil
}

// AddCollaborator grants access to another user. Owner only.
func (s *VentureService) AddCollaborator(ctx context.Context, userID, ventureID string, req *domain.AddCollaboratorRequest) (*domain.Venture, error) {
	venture, err := s.Get(ctx, userID, ventureID)
	if err != nil {
		return nil, err
	}
	if venture.OwnerID != userID {
		return nil, ErrForbidden
	}

	if req.UserID == "" {
		return nil, validationError("user_id is required")
	}
	if req.UserID == venture.OwnerID {
		return nil, validationError("owner cannot be added as a collaborator")
	}
	if req.Role != domain.RoleEditor && req.Role != domain.RoleViewer {
		return nil, validationError("unknown role %q", req.Role)
	}

	collaborator := domain.Collaborator{
		UserID:  req.UserID,
		Role:    req.Role,
		AddedAt: time.Now().UTC(),
	}
	if err := s.repo.AddCollaborator(ctx, ventureID, collaborator); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("venture_id", ventureID).
		Str("user_id", userID).
		Str("collaborator", req.UserID).
		Str("role", string(req.Role)).
		Msg("collaborator added")

	return s.repo.FindByID(ctx, ventureID)
}
