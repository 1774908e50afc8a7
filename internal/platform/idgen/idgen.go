package idgen

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator returns a new globally unique opaque id.
type Generator func() string

// UUID returns random (version 4) UUIDs.
func UUID() string {
	return uuid.NewString()
}

var (
	mutex   sync.Mutex
	entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// ULID returns lexicographically sortable ids, monotonic within a millisecond.
func ULID() string {
	mutex.Lock()
	defer mutex.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// FromName resolves the FLOWQ_ID_FORMAT setting.
func FromName(name string) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "uuid":
		return UUID, nil
	case "ulid":
		return ULID, nil
	default:
		return nil, fmt.Errorf("unknown id format %q", name)
	}
}
