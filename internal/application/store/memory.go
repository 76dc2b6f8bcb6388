// Package store persists poll-worker applications.
package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"pollworker/internal/application/models"
	id "pollworker/pkg/domain"
	"pollworker/pkg/platform/sentinel"
	"pollworker/pkg/requestcontext"
)

// InMemory is a map-backed store. Records are cloned on the way in and out.
// Multi-step operations are serialised by tx.LockRunner, not by this type.
type InMemory struct {
	mu   sync.RWMutex
	byID map[id.ApplicationID]*models.Application
}

func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[id.ApplicationID]*models.Application)}
}

func (s *InMemory) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[app.ID]; ok {
		return fmt.Errorf("application %s: %w", app.ID, sentinel.ErrAlreadyUsed)
	}
	if s.emailTakenLocked(app.Email, app.ID) {
		return fmt.Errorf("application email %s: %w", app.Email, sentinel.ErrAlreadyUsed)
	}
	s.byID[app.ID] = app.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.byID[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return app.Clone(), nil
}

// FindByToken returns the application whose pending token equals token,
// regardless of expiry.
func (s *InMemory) FindByToken(_ context.Context, token string) (*models.Application, error) {
	return s.findFirst(func(a *models.Application) bool {
		return a.VerificationToken != nil && *a.VerificationToken == token
	})
}

// FindByConsumedToken returns the application verified with token.
func (s *InMemory) FindByConsumedToken(_ context.Context, token string) (*models.Application, error) {
	return s.findFirst(func(a *models.Application) bool {
		return a.ConsumedToken != nil && *a.ConsumedToken == token
	})
}

func (s *InMemory) FindByEmail(_ context.Context, address string) (*models.Application, error) {
	return s.findFirst(func(a *models.Application) bool {
		return strings.EqualFold(a.Email, address)
	})
}

func (s *InMemory) Update(ctx context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[app.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.emailTakenLocked(app.Email, app.ID) {
		return fmt.Errorf("application email %s: %w", app.Email, sentinel.ErrAlreadyUsed)
	}
	stored := app.Clone()
	stored.UpdatedAt = requestcontext.Now(ctx)
	s.byID[app.ID] = stored
	app.UpdatedAt = stored.UpdatedAt
	return nil
}

// MarkVerified writes the verification fields only if the stored record is
// still unverified and holds the token being consumed. A lost race returns
// sentinel.ErrConflict.
func (s *InMemory) MarkVerified(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[app.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.IsVerified() || current.VerificationToken == nil ||
		app.ConsumedToken == nil || *current.VerificationToken != *app.ConsumedToken {
		return sentinel.ErrConflict
	}
	current.EmailVerifiedAt = copyPtr(app.EmailVerifiedAt)
	current.ConsumedToken = copyPtr(app.ConsumedToken)
	current.VerificationToken = nil
	current.VerificationTokenExpiresAt = nil
	current.UserID = copyPtr(app.UserID)
	current.UpdatedAt = app.UpdatedAt
	return nil
}

func (s *InMemory) Delete(_ context.Context, appID id.ApplicationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[appID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byID, appID)
	return nil
}

// List returns one page of applications matching filter, newest first, and
// the total number of matches.
func (s *InMemory) List(_ context.Context, filter models.ListFilter) ([]*models.Application, int, error) {
	matched := s.sorted(func(a *models.Application) bool { return matches(a, filter) })
	total := len(matched)
	start := min(filter.Offset(), total)
	end := min(start+models.PageSize, total)
	return matched[start:end], total, nil
}

func (s *InMemory) Stats(_ context.Context) (models.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats models.DashboardStats
	for _, a := range s.byID {
		stats.Total++
		if a.ResidencyStatus == models.ResidencyPending {
			stats.PendingResidency++
			if a.IsVerified() {
				stats.VerifiedAwaitingApproval++
			}
		}
		if a.ResidencyStatus == models.ResidencyApproved && a.PartyAffiliation == nil {
			stats.ApprovedWithoutParty++
		}
	}
	return stats, nil
}

// ListAllForExport returns every application, newest first.
func (s *InMemory) ListAllForExport(_ context.Context) ([]*models.Application, error) {
	return s.sorted(func(*models.Application) bool { return true }), nil
}

func (s *InMemory) findFirst(pred func(*models.Application) bool) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.byID {
		if pred(a) {
			return a.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) sorted(pred func(*models.Application) bool) []*models.Application {
	s.mu.RLock()
	out := make([]*models.Application, 0, len(s.byID))
	for _, a := range s.byID {
		if pred(a) {
			out = append(out, a.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.Application) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID.String(), a.ID.String())
	})
	return out
}

func (s *InMemory) emailTakenLocked(address string, self id.ApplicationID) bool {
	for otherID, a := range s.byID {
		if otherID != self && strings.EqualFold(a.Email, address) {
			return true
		}
	}
	return false
}

func matches(a *models.Application, f models.ListFilter) bool {
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(a.Name), needle) &&
			!strings.Contains(strings.ToLower(a.Email), needle) &&
			!strings.Contains(strings.ToLower(a.StreetAddress), needle) {
			return false
		}
	}
	if f.ResidencyStatus != "" && a.ResidencyStatus != f.ResidencyStatus {
		return false
	}
	if f.PartyAffiliation != "" && (a.PartyAffiliation == nil || *a.PartyAffiliation != f.PartyAffiliation) {
		return false
	}
	switch f.EmailVerified {
	case models.VerifiedYes:
		return a.IsVerified()
	case models.VerifiedNo:
		return !a.IsVerified()
	}
	return true
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
