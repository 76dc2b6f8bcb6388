package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pollworker/internal/user/models"
	id "pollworker/pkg/domain"
	"pollworker/pkg/platform/sentinel"
)

type InMemoryUserStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestInMemoryUserStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryUserStoreSuite))
}

func (s *InMemoryUserStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func newUser(email string) *models.User {
	return models.NewVerifiedUser(id.NewUserID(), "Pat", email, "hash", false, time.Now())
}

func (s *InMemoryUserStoreSuite) TestCreateAndFind() {
	u := newUser("pat@example.com")
	s.Require().NoError(s.store.Create(s.ctx, u))

	byID, err := s.store.FindByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(u.Email, byID.Email)

	byEmail, err := s.store.FindByEmail(s.ctx, "PAT@example.com")
	s.Require().NoError(err)
	s.Equal(u.ID, byEmail.ID)
}

func (s *InMemoryUserStoreSuite) TestCreate_DuplicateEmail() {
	s.Require().NoError(s.store.Create(s.ctx, newUser("pat@example.com")))
	err := s.store.Create(s.ctx, newUser("Pat@Example.com"))
	s.True(errors.Is(err, sentinel.ErrAlreadyUsed))
}

func (s *InMemoryUserStoreSuite) TestDelete() {
	u := newUser("pat@example.com")
	s.Require().NoError(s.store.Create(s.ctx, u))
	s.Require().NoError(s.store.Delete(s.ctx, u.ID))

	_, err := s.store.FindByID(s.ctx, u.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(s.ctx, u.ID), sentinel.ErrNotFound)

	s.NoError(s.store.Create(s.ctx, newUser("pat@example.com")), "email is released on delete")
}
