package mariadb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// EmployeeColumns maps HR table columns to user fields.
type EmployeeColumns struct {
	ID         string
	Name       string
	Email      string
	Department string
	Role       string
}

// DefaultEmployeeColumns matches the common HR directory layout.
func DefaultEmployeeColumns() EmployeeColumns {
	return EmployeeColumns{
		ID:         "id",
		Name:       "name",
		Email:      "email",
		Department: "department",
		Role:       "position",
	}
}

func (c EmployeeColumns) validate() error {
	for _, name := range []string{c.ID, c.Name, c.Email, c.Department, c.Role} {
		if !identifierRe.MatchString(name) {
			return fmt.Errorf("invalid column name %q", name)
		}
	}
	return nil
}

// Employee is a row of the HR directory.
type Employee struct {
	ID         string
	Name       string
	Email      string
	Department string
	Role       string
}

// EmployeeQuery builds the keyset-paginated select for table.
func EmployeeQuery(table string, cols EmployeeColumns) (string, error) {
	if !identifierRe.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	if err := cols.validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"SELECT CAST(`%s` AS CHAR), COALESCE(`%s`, ''), COALESCE(`%s`, ''), COALESCE(`%s`, ''), COALESCE(`%s`, '') "+
			"FROM `%s` WHERE CAST(`%s` AS CHAR) > ? ORDER BY CAST(`%s` AS CHAR) LIMIT ?",
		cols.ID, cols.Name, cols.Email, cols.Department, cols.Role,
		table, cols.ID, cols.ID,
	), nil
}

// ListEmployees streams the HR table in batches, calling fn for each batch.
func (p *Pool) ListEmployees(
	ctx context.Context, table string, cols EmployeeColumns, batchSize int, fn func([]Employee) error,
) error {
	query, err := EmployeeQuery(table, cols)
	if err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	after := ""
	for {
		batch, err := p.employeeBatch(ctx, query, after, batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		after = batch[len(batch)-1].ID
		if len(batch) < batchSize {
			return nil
		}
	}
}

func (p *Pool) employeeBatch(ctx context.Context, query, after string, limit int) ([]Employee, error) {
	var batch []Employee
	err := p.readOnly(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, after, limit)
		if err != nil {
			return fmt.Errorf("query employees: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e Employee
			if err := rows.Scan(&e.ID, &e.Name, &e.Email, &e.Department, &e.Role); err != nil {
				return fmt.Errorf("scan employee: %w", err)
			}
			batch = append(batch, e)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate employees: %w", err)
		}
		return nil
	})
	return batch, err
}

// CountEmployees returns the number of rows in the HR table.
func (p *Pool) CountEmployees(ctx context.Context, table string) (int, error) {
	if !identifierRe.MatchString(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	var n int
	err := p.readOnly(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM `%s`", table)).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count employees: %w", err)
	}
	return n, nil
}
