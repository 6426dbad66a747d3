package stream

import (
	"math/rand"
	"time"
)

const (
	backoffBase   = time.Second
	backoffCap    = 30 * time.Second
	backoffMaxExp = 5
	backoffJitter = 250 * time.Millisecond
)

// reconnectDelay computes the wait before retry attempt n:
// min(30s, 1s·2^min(n,5)) plus up to 250ms of jitter so a fleet of displays
// losing the same backend does not reconnect in lockstep.
func reconnectDelay(attempt int) time.Duration {
	return backoffFloor(attempt) + time.Duration(rand.Int63n(int64(backoffJitter)+1))
}

// backoffFloor is the deterministic part of the delay for attempt n.
func backoffFloor(attempt int) time.Duration {
	exp := attempt
	if exp > backoffMaxExp {
		exp = backoffMaxExp
	}
	d := backoffBase << uint(exp)
	if d > backoffCap {
		d = backoffCap
	}
	return d
}
