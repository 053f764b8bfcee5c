package projects

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetActive(ctx context.Context) ([]Project, bool, error) {
	args := m.Called(ctx)
	projects, _ := args.Get(0).([]Project)
	return projects, args.Bool(1), args.Error(2)
}

func (m *MockCache) SetActive(ctx context.Context, projects []Project) error {
	args := m.Called(ctx, projects)
	return args.Error(0)
}

func (m *MockCache) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestListActiveProjectsFillsCacheOnMiss(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t)
	_, err := f.svc.Activate(ctx, f.admin, p.ID)
	require.NoError(t, err)

	cache := new(MockCache)
	cache.On("GetActive", mock.Anything).Return(nil, false, nil)
	cache.On("SetActive", mock.Anything, mock.MatchedBy(func(ps []Project) bool {
		return len(ps) == 1 && ps[0].ID == p.ID
	})).Return(nil)
	f.svc.cache = cache

	active, err := f.svc.ListActiveProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	cache.AssertExpectations(t)
}

func TestListActiveProjectsServesCacheHit(t *testing.T) {
	cached := []Project{{Title: "cached", Status: StatusActive}}
	cache := new(MockCache)
	cache.On("GetActive", mock.Anything).Return(cached, true, nil)

	svc := NewService(newMemRepository(), cache, zap.NewNop())
	active, err := svc.ListActiveProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cached, active)
	cache.AssertNotCalled(t, "SetActive", mock.Anything, mock.Anything)
}

func TestListActiveProjectsIgnoresCacheErrors(t *testing.T) {
	cache := new(MockCache)
	cache.On("GetActive", mock.Anything).Return(nil, false, errors.New("connection refused"))
	cache.On("SetActive", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	svc := NewService(newMemRepository(), cache, zap.NewNop())
	active, err := svc.ListActiveProjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestMutationsInvalidateCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t)

	cache := new(MockCache)
	cache.On("Invalidate", mock.Anything).Return(errors.New("connection refused")).Once()
	cache.On("Invalidate", mock.Anything).Return(nil)
	f.svc.cache = cache

	_, err := f.svc.Activate(ctx, f.admin, p.ID)
	require.NoError(t, err, "cache failures never fail the request")
	_, err = f.svc.RequestEnrollment(ctx, f.student, p.ID)
	require.NoError(t, err)

	// no-op transitions write nothing and keep the cache
	_, err = f.svc.Activate(ctx, f.admin, p.ID)
	require.NoError(t, err)

	cache.AssertNumberOfCalls(t, "Invalidate", 2)
}
