package util

import "time"

// ChinaTZ is the exchange-local timezone for every venue the gateway covers.
// Falls back to a fixed UTC+8 zone when the tz database is unavailable.
var ChinaTZ = func() *time.Location {
	if loc, err := time.LoadLocation("Asia/Shanghai"); err == nil {
		return loc
	}
	return time.FixedZone("CST", 8*60*60)
}()
