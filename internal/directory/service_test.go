package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	employees map[string]*Employee
	results   []Employee
	err       error
	block     bool
	queries   []Query
}

func (store *fakeStore) Search(ctx context.Context, query Query, _ int) ([]Employee, error) {
	store.queries = append(store.queries, query)

	if store.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	return append([]Employee(nil), store.results...), store.err
}

func (store *fakeStore) GetByID(ctx context.Context, employeeID string) (*Employee, error) {
	if store.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if store.err != nil {
		return nil, store.err
	}

	employee, ok := store.employees[employeeID]
	if !ok {
		return nil, ErrEmployeeNotFound
	}

	return employee, nil
}

type mapCache struct {
	entries map[string][]Employee
}

func (cache *mapCache) Get(_ context.Context, query Query) ([]Employee, bool, error) {
	employees, ok := cache.entries[searchKey(query)]
	return employees, ok, nil
}

func (cache *mapCache) Set(_ context.Context, query Query, employees []Employee) error {
	cache.entries[searchKey(query)] = employees
	return nil
}

func TestSearchPutsAvailableEmployeesFirst(t *testing.T) {
	store := &fakeStore{results: []Employee{
		{ID: "1", FirstName: "John", LastName: "Adams", Status: StatusBusy},
		{ID: "2", FirstName: "John", LastName: "Smith", Status: StatusAvailable},
	}}
	service := NewService(store, nil, time.Second, 5)

	employees, err := service.Search(context.Background(), Query{Name: "John"}, time.Now())
	require.NoError(t, err)
	require.Len(t, employees, 2)
	require.Equal(t, "2", employees[0].ID)
}

func TestSearchCanonicalisesDepartment(t *testing.T) {
	store := &fakeStore{}
	service := NewService(store, nil, time.Second, 5)

	_, err := service.Search(context.Background(), Query{Department: "kundservice"}, time.Now())
	require.NoError(t, err)
	require.Equal(t, []Query{{Department: "Support"}}, store.queries)
}

func TestSearchTimeoutIsDirectoryUnavailable(t *testing.T) {
	store := &fakeStore{block: true}
	service := NewService(store, nil, 20*time.Millisecond, 5)

	_, err := service.Search(context.Background(), Query{Name: "Jane"}, time.Now())
	require.ErrorIs(t, err, ErrDirectoryUnavailable)
}

func TestSearchStoreErrorIsDirectoryUnavailable(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	service := NewService(store, nil, time.Second, 5)

	_, err := service.Search(context.Background(), Query{Name: "Jane"}, time.Now())
	require.ErrorIs(t, err, ErrDirectoryUnavailable)
}

func TestSearchCallerCancellationIsNotDirectoryUnavailable(t *testing.T) {
	store := &fakeStore{block: true}
	service := NewService(store, nil, time.Second, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.Search(ctx, Query{Name: "Jane"}, time.Now())
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrDirectoryUnavailable)
}

func TestSearchUsesCache(t *testing.T) {
	store := &fakeStore{results: []Employee{{ID: "1", FirstName: "Jane", LastName: "Doe", Status: StatusAvailable}}}
	cache := &mapCache{entries: map[string][]Employee{}}
	service := NewService(store, cache, time.Second, 5)

	for range 3 {
		employees, err := service.Search(context.Background(), Query{Name: "Jane Doe"}, time.Now())
		require.NoError(t, err)
		require.Len(t, employees, 1)
	}

	require.Len(t, store.queries, 1)
}

func TestIsAvailable(t *testing.T) {
	store := &fakeStore{employees: map[string]*Employee{
		"jane": {ID: "jane", Status: StatusAvailable},
		"john": {ID: "john", Status: StatusOffline},
	}}
	service := NewService(store, nil, time.Second, 5)

	available, err := service.IsAvailable(context.Background(), "jane", time.Now())
	require.NoError(t, err)
	require.True(t, available)

	available, err = service.IsAvailable(context.Background(), "john", time.Now())
	require.NoError(t, err)
	require.False(t, available)

	available, err = service.IsAvailable(context.Background(), "nobody", time.Now())
	require.NoError(t, err)
	require.False(t, available)

	store.err = errors.New("too many connections")
	_, err = service.IsAvailable(context.Background(), "jane", time.Now())
	require.ErrorIs(t, err, ErrDirectoryUnavailable)
}
