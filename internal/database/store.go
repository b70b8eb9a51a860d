package database

import (
	"context"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// registryStore resolves the registered attendance writer on every call so a
// long-lived attendance.Service follows backend registration changes.
type registryStore struct{}

// AttendanceStore returns an attendance.Store backed by the registered writer.
func AttendanceStore() attendance.Store {
	return registryStore{}
}

func (registryStore) Get(ctx context.Context, userID, date string) (*attendance.Record, error) {
	w, err := GetAttendanceWriter(ctx)
	if err != nil {
		return nil, err
	}
	return w.Get(ctx, userID, date)
}

func (registryStore) Create(ctx context.Context, rec *attendance.Record) error {
	w, err := GetAttendanceWriter(ctx)
	if err != nil {
		return err
	}
	return w.Create(ctx, rec)
}

func (registryStore) CloseOut(ctx context.Context, rec *attendance.Record) error {
	w, err := GetAttendanceWriter(ctx)
	if err != nil {
		return err
	}
	return w.CloseOut(ctx, rec)
}

func (registryStore) Replace(ctx context.Context, rec *attendance.Record) error {
	w, err := GetAttendanceWriter(ctx)
	if err != nil {
		return err
	}
	return w.Replace(ctx, rec)
}
