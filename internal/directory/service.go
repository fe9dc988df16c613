package directory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	prometheusReceptionist "git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/prometheus"
	"go.uber.org/zap"
)

var ErrDirectoryUnavailable = errors.New("directory unavailable")

type Store interface {
	Search(ctx context.Context, query Query, limit int) ([]Employee, error)
	GetByID(ctx context.Context, employeeID string) (*Employee, error)
}

type SearchCache interface {
	Get(ctx context.Context, query Query) ([]Employee, bool, error)
	Set(ctx context.Context, query Query, employees []Employee) error
}

// DirectoryService bounds every lookup by Timeout; a lookup that does not
// answer in time is reported as ErrDirectoryUnavailable.
type DirectoryService struct {
	Store   Store
	Cache   SearchCache
	Timeout time.Duration
	Limit   int
}

func NewService(store Store, cache SearchCache, timeout time.Duration, limit int) *DirectoryService {
	return &DirectoryService{
		Store:   store,
		Cache:   cache,
		Timeout: timeout,
		Limit:   limit,
	}
}

// Search returns matches with the employees available at `at` first.
func (directoryService *DirectoryService) Search(ctx context.Context, query Query, at time.Time) ([]Employee, error) {
	start := time.Now()

	if canonical, ok := CanonicalDepartment(query.Department); ok {
		query.Department = canonical
	}

	lookupCtx, cancel := context.WithTimeout(ctx, directoryService.Timeout)
	defer cancel()

	employees, hit := directoryService.fromCache(lookupCtx, query)
	if !hit {
		var err error

		employees, err = directoryService.Store.Search(lookupCtx, query, directoryService.Limit)
		if err != nil {
			prometheusReceptionist.DirectoryLookupDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())

			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			logging.Logger.Error("[Search] directory lookup failed",
				zap.String("error", err.Error()),
				zap.String("name", query.Name),
				zap.String("department", query.Department),
			)

			return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
		}

		directoryService.toCache(lookupCtx, query, employees)
	}

	slices.SortStableFunc(employees, func(a, b Employee) int {
		return availabilityRank(&a, at) - availabilityRank(&b, at)
	})

	result := "miss"
	if hit {
		result = "hit"
	}

	prometheusReceptionist.DirectoryLookupDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	return employees, nil
}

// IsAvailable always reads through to the store so a status change is seen immediately.
func (directoryService *DirectoryService) IsAvailable(ctx context.Context, employeeID string, at time.Time) (bool, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, directoryService.Timeout)
	defer cancel()

	employee, err := directoryService.Store.GetByID(lookupCtx, employeeID)
	if errors.Is(err, ErrEmployeeNotFound) {
		return false, nil
	}

	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		return false, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	return IsAvailableAt(employee, at), nil
}

func (directoryService *DirectoryService) fromCache(ctx context.Context, query Query) ([]Employee, bool) {
	if directoryService.Cache == nil {
		return nil, false
	}

	employees, ok, err := directoryService.Cache.Get(ctx, query)
	if err != nil {
		logging.Logger.Warn("[Search] directory cache read failed", zap.String("error", err.Error()))
		return nil, false
	}

	return employees, ok
}

func (directoryService *DirectoryService) toCache(ctx context.Context, query Query, employees []Employee) {
	if directoryService.Cache == nil {
		return
	}

	err := directoryService.Cache.Set(ctx, query, employees)
	if err != nil {
		logging.Logger.Warn("[Search] directory cache write failed", zap.String("error", err.Error()))
	}
}

func availabilityRank(employee *Employee, at time.Time) int {
	if IsAvailableAt(employee, at) {
		return 0
	}

	return 1
}
