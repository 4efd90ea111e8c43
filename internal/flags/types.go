package flags

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("flag not found")

// Flag is a runtime feature toggle, e.g. "indexer.live.enabled".
type Flag struct {
	Key       string    `json:"key"`
	Value     bool      `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
