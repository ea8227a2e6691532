package store

import (
	"time"

	"github.com/tsurube/tsurube/internal/model"
)

// Client exptimes above this threshold are absolute Unix timestamps; at or
// below it they are relative seconds from now.
const relativeExptimeMax = 60 * 60 * 24 * 30

var nowUnix = func() int64 { return time.Now().Unix() }

// normalizeExptime converts a client-supplied exptime into the absolute
// expiry stored on the entry: 0 keeps it alive forever, a negative value
// makes it expired from birth.
func normalizeExptime(exptime, now int64) int64 {
	switch {
	case exptime == 0:
		return 0
	case exptime < 0:
		return -1
	case exptime <= relativeExptimeMax:
		return now + exptime
	default:
		return exptime
	}
}

// isExpired reports whether e is dead at now. Expiration is lazy: nothing
// sweeps in the background, callers remove entries they find dead.
func isExpired(e *model.Entry, now int64) bool {
	if e.ExpUnix == 0 {
		return false
	}
	return e.ExpUnix < 0 || e.ExpUnix <= now
}
