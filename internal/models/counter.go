package models

import "time"

// Counter is the monotonic sequence backing external identifiers of one key.
type Counter struct {
	Key       string    `db:"key" json:"key"`
	Value     int64     `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
