package tcp

import "time"

// now is indirected through a var, rather than called as time.Now()
// everywhere, purely so tests can substitute a fake clock without real
// sleeps when exercising RTO backoff and the timeout timers.
var now = time.Now
