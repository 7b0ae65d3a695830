package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// MaxRequestBodySize caps inbound request bodies. Every portal payload is a
// small JSON document, so 1MB leaves generous headroom.
const MaxRequestBodySize = 1 << 20

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Defaults applied to newly created accounts.
const (
	DefaultDailyLimit = 20
	DefaultBalance    = 100
)

// Values forced onto an account when it is promoted to admin. Promotion and
// demotion are destructive overwrites: whatever the account had accumulated
// before the role change is discarded.
const (
	AdminBalance    = 999999
	AdminDailyLimit = 9999
)

// Outbound webhook delivery
const (
	RelayTimeout     = 10 * time.Second
	RelayMaxBodyRead = 4096
	LogPreviewLength = 50
)

// BypassMessage is the fixed ceremonial message that can be posted without
// consuming the daily quota.
const BypassMessage = "\U0001F1FA\U0001F1F8"

// Portal session lifetime
const SessionTTL = 24 * time.Hour

// LimitPackage is a purchasable daily-limit increase. The set of packages is
// fixed configuration, never user-supplied.
type LimitPackage struct {
	Amount int `json:"amount"`
	Cost   int `json:"cost"`
}

var LimitPackages = []LimitPackage{
	{Amount: 50, Cost: 20},
	{Amount: 300, Cost: 100},
}

// FindLimitPackage returns the configured package matching the given
// cost/amount pair, or false when no such package exists.
func FindLimitPackage(cost, amount int) (LimitPackage, bool) {
	for _, p := range LimitPackages {
		if p.Cost == cost && p.Amount == amount {
			return p, true
		}
	}
	return LimitPackage{}, false
}
