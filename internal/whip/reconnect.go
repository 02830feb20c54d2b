package whip

import "time"

// reconnectState decides whether and when the next full reconnect attempt
// runs. Pure bookkeeping: the publisher owns scheduling and locking.
type reconnectState struct {
	retries     int
	lastAttempt time.Time
}

// next consumes one retry from the budget. A gap longer than coolDown since
// the previous attempt resets the counter first. ok=false means the budget
// is spent and the session is terminal until explicitly restarted.
func (r *reconnectState) next(now time.Time, maxRetries int, baseDelay, coolDown time.Duration) (attempt int, delay time.Duration, ok bool) {
	if !r.lastAttempt.IsZero() && now.Sub(r.lastAttempt) > coolDown {
		r.retries = 0
	}
	if r.retries >= maxRetries {
		return 0, 0, false
	}
	r.retries++
	r.lastAttempt = now
	return r.retries, baseDelay << (r.retries - 1), true
}

// reset clears the counter and timestamp after a successful connection.
func (r *reconnectState) reset() {
	r.retries = 0
	r.lastAttempt = time.Time{}
}
