//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"pollworker/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestGetMissing() {
	_, ok, err := s.store.Get(context.Background(), "registration_enabled")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisStoreSuite) TestSetThenGet() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, "registration_enabled", "false"))

	v, ok, err := s.store.Get(ctx, "registration_enabled")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("false", v)

	raw, err := s.redis.Client.Get(ctx, "pollworker:settings:registration_enabled").Result()
	s.Require().NoError(err)
	s.Equal("false", raw)
}
