//go:build integration

package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"creditengine/internal/application/service"
	id "creditengine/pkg/domain"
	"creditengine/pkg/testutil/containers"
)

type RedisGuardSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	guard *service.RedisGuard
}

func TestRedisGuardSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisGuardSuite))
}

func (s *RedisGuardSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.guard = service.NewRedisGuard(s.redis.Client)
}

func (s *RedisGuardSuite) SetupTest() {
	s.Require().NoError(s.redis.Reset(context.Background()))
}

// TestConcurrentAcquire verifies that exactly one caller holds the guard.
func (s *RedisGuardSuite) TestConcurrentAcquire() {
	ctx := context.Background()
	appID := id.NewApplicationID()
	const goroutines = 30

	var wg sync.WaitGroup
	var acquired atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.guard.Acquire(ctx, appID, time.Minute)
			if err == nil && ok {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), acquired.Load())
}

func (s *RedisGuardSuite) TestReleaseOnlyWithOwnToken() {
	ctx := context.Background()
	appID := id.NewApplicationID()

	token, ok, err := s.guard.Acquire(ctx, appID, time.Minute)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().NoError(s.guard.Release(ctx, appID, "someone-else"))
	_, ok, err = s.guard.Acquire(ctx, appID, time.Minute)
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.guard.Release(ctx, appID, token))
	keys, err := s.redis.Keys(ctx, "submission:")
	s.Require().NoError(err)
	s.Empty(keys)

	_, ok, err = s.guard.Acquire(ctx, appID, time.Minute)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RedisGuardSuite) TestExpiry() {
	ctx := context.Background()
	appID := id.NewApplicationID()

	_, ok, err := s.guard.Acquire(ctx, appID, 100*time.Millisecond)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Eventually(func() bool {
		_, ok, err := s.guard.Acquire(ctx, appID, time.Minute)
		return err == nil && ok
	}, 2*time.Second, 50*time.Millisecond)
}
