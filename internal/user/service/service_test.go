package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"pollworker/internal/audit"
	auditstore "pollworker/internal/audit/store"
	jwttoken "pollworker/internal/jwt_token"
	"pollworker/internal/user/models"
	"pollworker/internal/user/store"
	id "pollworker/pkg/domain"
	dErrors "pollworker/pkg/domain-errors"
	"pollworker/pkg/platform/secrets"
	"pollworker/pkg/requestcontext"
)

type UserServiceSuite struct {
	suite.Suite
	users   *store.InMemory
	audit   *auditstore.InMemoryStore
	jwt     *jwttoken.JWTService
	service *Service
	ctx     context.Context
}

func TestUserServiceSuite(t *testing.T) {
	suite.Run(t, new(UserServiceSuite))
}

func (s *UserServiceSuite) SetupTest() {
	s.users = store.NewInMemory()
	s.audit = auditstore.NewInMemoryStore()
	now := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	s.jwt = jwttoken.NewJWTService("test-key", "pollworker", time.Hour,
		jwttoken.WithClock(func() time.Time { return now }))
	s.service = New(s.users, secrets.Hasher{Cost: bcrypt.MinCost},
		WithTokenIssuer(s.jwt),
		WithAuditPublisher(audit.NewPublisher(s.audit)),
	)
	s.ctx = requestcontext.WithTime(context.Background(), now)
}

func (s *UserServiceSuite) TestCreateAccount() {
	s.Run("creates a verified non-admin user", func() {
		user, err := s.service.CreateAccount(s.ctx, models.CreateAccountRequest{
			Name: " Pat Worker ", Email: "Pat@Example.com", Password: "password1",
		})
		s.Require().NoError(err)
		s.Equal("Pat Worker", user.Name)
		s.Equal("pat@example.com", user.Email)
		s.False(user.IsAdmin)
		s.NotNil(user.EmailVerifiedAt)
		s.NotEqual("password1", user.PasswordHash)
		s.Len(s.audit.ListAll(), 1)
	})

	s.Run("rejects duplicate email", func() {
		_, err := s.service.CreateAccount(s.ctx, models.CreateAccountRequest{
			Name: "Other", Email: "pat@example.com", Password: "password2",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(dErrors.FieldsOf(err), "email")
	})

	s.Run("rejects short password and bad email together", func() {
		_, err := s.service.CreateAccount(s.ctx, models.CreateAccountRequest{
			Name: "Short", Email: "nope", Password: "1234567",
		})
		fields := dErrors.FieldsOf(err)
		s.Contains(fields, "password")
		s.Contains(fields, "email")
	})
}

func (s *UserServiceSuite) TestLogin() {
	_, created, err := s.service.EnsureAdmin(s.ctx, "Administrator", "admin@warren-ct.gov", "secret-pass")
	s.Require().NoError(err)
	s.True(created)

	s.Run("issues an admin token", func() {
		res, err := s.service.Login(s.ctx, "ADMIN@warren-ct.gov", "secret-pass")
		s.Require().NoError(err)
		s.True(res.IsAdmin)
		s.Equal("Bearer", res.TokenType)
		s.Equal(int64(3600), res.ExpiresIn)

		claims, err := s.jwt.ValidateToken(res.AccessToken)
		s.Require().NoError(err)
		s.True(claims.IsAdmin)
	})

	s.Run("wrong password", func() {
		_, err := s.service.Login(s.ctx, "admin@warren-ct.gov", "nope")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown email", func() {
		_, err := s.service.Login(s.ctx, "ghost@warren-ct.gov", "secret-pass")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *UserServiceSuite) TestEnsureAdmin_IsIdempotent() {
	first, created, err := s.service.EnsureAdmin(s.ctx, "Administrator", "admin@warren-ct.gov", "secret-pass")
	s.Require().NoError(err)
	s.True(created)

	second, created, err := s.service.EnsureAdmin(s.ctx, "Administrator", "admin@warren-ct.gov", "other-pass")
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, second.ID)

	isAdmin, err := s.service.IsAdmin(s.ctx, first.ID)
	s.Require().NoError(err)
	s.True(isAdmin)
}

func (s *UserServiceSuite) TestNamesByIDs() {
	user, err := s.service.CreateAccount(s.ctx, models.CreateAccountRequest{
		Name: "Reviewer", Email: "reviewer@example.com", Password: "password1", IsAdmin: true,
	})
	s.Require().NoError(err)

	names, err := s.service.NamesByIDs(s.ctx, []id.UserID{user.ID, id.NewUserID()})
	s.Require().NoError(err)
	s.Equal(map[id.UserID]string{user.ID: "Reviewer"}, names)
}
