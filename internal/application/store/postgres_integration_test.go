//go:build integration

package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pollworker/internal/application/models"
	usermodels "pollworker/internal/user/models"
	userstore "pollworker/internal/user/store"
	id "pollworker/pkg/domain"
	"pollworker/pkg/platform/sentinel"
	txcontext "pollworker/pkg/platform/tx"
	"pollworker/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg     *containers.PostgresContainer
	store  *PostgresStore
	users  *userstore.PostgresStore
	runner *txcontext.PostgresRunner
	now    time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgres(s.pg.DB)
	s.users = userstore.NewPostgres(s.pg.DB)
	s.runner = txcontext.NewPostgresRunner(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background(), "applications", "users"))
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) create(name, address string) *models.Application {
	app := models.NewApplication(id.NewApplicationID(),
		models.ApplicantInput{Name: name, Email: address, StreetAddress: "1 Main St"}, "tok-"+address, s.now)
	s.Require().NoError(s.store.Create(context.Background(), app))
	return app
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	app := s.create("Ada", "ada@example.com")

	found, err := s.store.FindByEmail(context.Background(), "ADA@example.com")
	s.Require().NoError(err)
	s.Equal(app.ID, found.ID)
	s.Equal(models.ResidencyPending, found.ResidencyStatus)
	s.Require().NotNil(found.VerificationTokenExpiresAt)
	s.True(found.VerificationTokenExpiresAt.Equal(s.now.Add(models.VerificationTTL)))

	dup := models.NewApplication(id.NewApplicationID(),
		models.ApplicantInput{Name: "Dup", Email: "Ada@Example.com", StreetAddress: "x"}, "other", s.now)
	s.ErrorIs(s.store.Create(context.Background(), dup), sentinel.ErrAlreadyUsed)
}

func (s *PostgresStoreSuite) TestConcurrentVerificationHasOneWinner() {
	ctx := context.Background()
	app := s.create("Ada", "ada@example.com")

	const racers = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
				current, err := s.store.FindByToken(ctx, "tok-ada@example.com")
				if err != nil {
					return err
				}
				user := usermodels.NewVerifiedUser(id.NewUserID(), current.Name, current.Email, "hash", false, s.now)
				if err := s.users.Create(ctx, user); err != nil {
					return err
				}
				current.ApplyVerification(user.ID, s.now)
				return s.store.MarkVerified(ctx, current)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrAlreadyUsed):
				conflicts++
			default:
				s.Failf("unexpected error", "%v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(1, successes)
	s.Equal(racers-1, conflicts)

	verified, err := s.store.FindByConsumedToken(ctx, "tok-ada@example.com")
	s.Require().NoError(err)
	s.Equal(app.ID, verified.ID)
	s.Require().NotNil(verified.UserID)
	s.Nil(verified.VerificationToken)
}

func (s *PostgresStoreSuite) TestReviewAttributionRoundTrip() {
	ctx := context.Background()
	admin := usermodels.NewVerifiedUser(id.NewUserID(), "Clerk", "clerk@example.gov", "hash", true, s.now)
	s.Require().NoError(s.users.Create(ctx, admin))

	app := s.create("Ada", "ada@example.com")
	app.ApplyResidency(models.ResidencyApproved, admin.ID, s.now)
	app.ApplyParty(models.PartyUnaffiliated, admin.ID, s.now)
	s.Require().NoError(s.store.Update(ctx, app))

	found, err := s.store.FindByID(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.ResidencyApproved, found.ResidencyStatus)
	s.Equal(admin.ID, *found.ResidencyValidatedBy)
	s.Equal(models.PartyUnaffiliated, *found.PartyAffiliation)
	s.Equal(admin.ID, *found.PartyAssignedBy)

	stats, err := s.store.Stats(ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.Total)
	s.Zero(stats.ApprovedWithoutParty)
}

func (s *PostgresStoreSuite) TestListSearchAndVerifiedFilter() {
	ctx := context.Background()
	s.create("Ada Lovelace", "ada@example.com")
	s.create("Grace Hopper", "grace@example.com")

	items, total, err := s.store.List(ctx, models.ListFilter{Search: "hopper", EmailVerified: models.VerifiedNo})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("Grace Hopper", items[0].Name)

	_, total, err = s.store.List(ctx, models.ListFilter{EmailVerified: models.VerifiedYes})
	s.Require().NoError(err)
	s.Zero(total)
}
