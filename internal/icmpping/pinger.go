package icmpping

import (
	"context"
	"net/netip"
	"time"
)

// Pinger is the contract the device monitor depends on. *Client satisfies
// it; tests substitute a fake.
type Pinger interface {
	Ping(ctx context.Context, ip netip.Addr) (time.Duration, error)
}

var _ Pinger = (*Client)(nil)
