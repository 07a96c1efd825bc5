package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/viewassist/timerd/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalExtraInfo serializes the extra_info map for a nullable JSON column.
func marshalExtraInfo(extra map[string]any) (interface{}, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("marshal extra_info failed: %w", err)
	}
	return string(data), nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan path.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTimer scans a TimerRecord from a timers row.
func scanTimer(row rowScanner) (models.TimerRecord, error) {
	var t models.TimerRecord
	var name, extraJSON sql.NullString
	err := row.Scan(
		&t.ID, &t.DeviceID, &t.TimerClass, &t.TimerType, &name,
		&t.Expires, &t.OriginalExpiry, &t.PreExpireWarning,
		&t.CreatedAt, &t.UpdatedAt, &t.Status, &extraJSON,
	)
	if err != nil {
		return t, err
	}
	t.Name = name.String
	if extraJSON.Valid && extraJSON.String != "" {
		if err := json.Unmarshal([]byte(extraJSON.String), &t.ExtraInfo); err != nil {
			return t, fmt.Errorf("unmarshal extra_info failed: %w", err)
		}
	}
	return t, nil
}
