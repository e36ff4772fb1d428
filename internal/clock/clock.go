package clock

import "time"

// NowFunc returns current time. Override in tests for determinism.
var NowFunc = time.Now

// Now is a thin wrapper around NowFunc.
func Now() time.Time { return NowFunc() }

// Since reports elapsed time against NowFunc so stubbed clocks stay consistent.
func Since(t time.Time) time.Duration { return Now().Sub(t) }
