package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
)

// hrNamespace derives stable user IDs from HR employee IDs so that repeated
// imports skip people who were already imported.
var hrNamespace = uuid.MustParse("6f1c1f38-9a57-4a55-9f0c-2c3f2f0c7a11")

// Result summarizes one import run.
type Result struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

func (r *Result) fail(err error) {
	r.Failed++
	r.Errors = append(r.Errors, err.Error())
}

// RecordImporter inserts records keeping their IDs. It reports false when
// the (user, date) key already exists.
type RecordImporter interface {
	Import(ctx context.Context, rec *attendance.Record) (bool, error)
}

// ImportUsers creates users, skipping those whose ID or email already exists.
// progress, if set, is called once per user.
func ImportUsers(ctx context.Context, w database.UserWriter, users []database.StoredUser, progress func()) Result {
	var res Result
	for i := range users {
		u := users[i]
		err := w.CreateUser(ctx, &u)
		switch {
		case err == nil:
			res.Imported++
		case errors.Is(err, database.ErrDuplicate):
			res.Skipped++
		default:
			res.fail(fmt.Errorf("user %s: %w", u.Email, err))
		}
		if progress != nil {
			progress()
		}
		if ctx.Err() != nil {
			res.fail(ctx.Err())
			break
		}
	}
	return res
}

// ImportRecords inserts legacy records, skipping keys that are already taken.
func ImportRecords(ctx context.Context, store RecordImporter, records []LegacyRecord, policy attendance.Policy, progress func()) Result {
	var res Result
	for _, lr := range records {
		rec, err := lr.ToRecord(policy)
		if err != nil {
			res.fail(err)
		} else {
			inserted, err := store.Import(ctx, rec)
			switch {
			case err != nil:
				res.fail(fmt.Errorf("record %s: %w", rec.ID, err))
			case inserted:
				res.Imported++
			default:
				res.Skipped++
			}
		}
		if progress != nil {
			progress()
		}
		if ctx.Err() != nil {
			res.fail(ctx.Err())
			break
		}
	}
	return res
}

// EmployeeToUser maps an HR directory row to a user without a face template.
// Rows without a name or email are rejected.
func EmployeeToUser(e mariadb.Employee) (database.StoredUser, bool) {
	name := strings.TrimSpace(e.Name)
	email := strings.TrimSpace(e.Email)
	if name == "" || email == "" {
		return database.StoredUser{}, false
	}
	department := strings.TrimSpace(e.Department)
	if department == "" {
		department = "Unassigned"
	}
	role := strings.TrimSpace(e.Role)
	if role == "" {
		role = "Employee"
	}
	return database.StoredUser{
		ID:         uuid.NewSHA1(hrNamespace, []byte("hr:"+e.ID)).String(),
		Name:       name,
		Email:      email,
		Department: department,
		Role:       role,
	}, true
}
