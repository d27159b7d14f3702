package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

// DayStart returns midnight of the current day in the given location.
// Publishing quota windows are anchored to a region's local day.
func DayStart(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	now := Now().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
}

// DateKey formats the current date as YYYY-MM-DD in the given location.
func DateKey(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return Now().In(loc).Format("2006-01-02")
}

func SetMockTime(t time.Time) {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = func() time.Time { return t }
}

func ResetTime() {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = time.Now
}
