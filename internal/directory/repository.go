package directory

import (
	"context"
	"errors"
	"strings"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/database"
	"github.com/sony/gobreaker/v2"
	"gorm.io/gorm"
)

var (
	ErrInvalidEmployeeResult      = errors.New("invalid result type, it should be pointer to Employee struct")
	ErrInvalidEmployeeSliceResult = errors.New("invalid result type, it should be slice of Employee")
	ErrEmployeeNotFound           = errors.New("employee not found")
)

type EmployeeRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewEmployeeRepository(dbConn *gorm.DB) *EmployeeRepository {
	cbSettings := database.GetCircuitBreakerSettings("employees")

	return &EmployeeRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// Search matches every part of a spoken name against first or last name, so
// "jane doe", "doe" and "jane" all find Jane Doe.
func (employeeRepository *EmployeeRepository) Search(
	ctx context.Context,
	query Query,
	limit int,
) ([]Employee, error) {
	result, err := employeeRepository.CircuitBreaker.Execute(func() (any, error) {
		var employees []Employee

		tx := employeeRepository.DBConn.WithContext(ctx).
			Model(&Employee{}).
			Preload("Department")

		for _, part := range strings.Fields(strings.ToLower(query.Name)) {
			like := "%" + part + "%"
			tx = tx.Where("(LOWER(employees.first_name) LIKE ? OR LOWER(employees.last_name) LIKE ?)", like, like)
		}

		if department := strings.TrimSpace(query.Department); department != "" {
			tx = tx.Joins("JOIN departments ON departments.id = employees.department_id").
				Where("LOWER(departments.name) = ?", strings.ToLower(department))
		}

		err := tx.Order("employees.last_name ASC, employees.first_name ASC").
			Limit(limit).
			Find(&employees).Error
		if err != nil {
			return nil, err
		}

		return dedupe(employees), nil
	})
	if err != nil {
		return nil, err
	}

	employees, ok := result.([]Employee)
	if !ok {
		return nil, ErrInvalidEmployeeSliceResult
	}

	return employees, nil
}

func (employeeRepository *EmployeeRepository) GetByID(ctx context.Context, employeeID string) (*Employee, error) {
	result, err := employeeRepository.CircuitBreaker.Execute(func() (any, error) {
		var employee Employee

		err := employeeRepository.DBConn.WithContext(ctx).
			Preload("Department").
			Where("id = ?", employeeID).
			First(&employee).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// a missing row is an answer, not a database failure
			return (*Employee)(nil), nil
		}

		if err != nil {
			return nil, err
		}

		return &employee, nil
	})
	if err != nil {
		return nil, err
	}

	employee, ok := result.(*Employee)
	if !ok {
		return nil, ErrInvalidEmployeeResult
	}

	if employee == nil {
		return nil, ErrEmployeeNotFound
	}

	return employee, nil
}

func dedupe(employees []Employee) []Employee {
	seen := make(map[string]struct{}, len(employees))
	unique := employees[:0]

	for _, employee := range employees {
		if _, ok := seen[employee.ID]; ok {
			continue
		}

		seen[employee.ID] = struct{}{}
		unique = append(unique, employee)
	}

	return unique
}
