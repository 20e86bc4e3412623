package http

import (
	"time"

	xutil "OBScan/pkg/util"
)

// ParseTime accepts RFC3339, a bare date, unix seconds or epoch milliseconds.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }
