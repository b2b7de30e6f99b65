package devices

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/desertwitch/netwatch/internal/cancel"
	"github.com/desertwitch/netwatch/internal/xlog"
)

// startMonitor spawns the probe-cycle goroutine for d, guarded by token.
// It is called only from within change(), already holding d.confMu.
func (r *Devices) startMonitor(d *Device, token *cancel.Token) {
	go func() {
		defer xlog.RecoverGoPanic("device-monitor", r.logger)
		r.runMonitor(d, token, d.StatusSnapshot())
	}()
}

// runMonitor implements the per-device probe cycle from the monitor
// design: one 1-s ping, on timeout up to ten 1-s-interval confirmation
// pings, a status write gated by an in-lock cancellation re-check, a
// broadcast on real transitions, and a repeat sleep. attemptTimeout and
// repeatSleep both follow the configured ping interval when set, and fall
// back to the spec's literal 1s/10s figures otherwise.
func (r *Devices) runMonitor(d *Device, token *cancel.Token, initial *StatusEntry) {
	status := initial

	attemptTimeout := defaultPollAttemptTimeout
	repeatSleep := defaultRepeatSleep
	if r.pingInterval > 0 {
		attemptTimeout = r.pingInterval
		repeatSleep = r.pingInterval
	}

	for {
		if token.Cancelled() {
			return
		}

		conf := d.ConfSnapshot()
		if conf.IPv4 == nil {
			return
		}

		candidate := r.probe(*conf.IPv4, attemptTimeout)

		if token.Cancelled() {
			return
		}

		prev, hasPrev := status.statusValue()
		if !hasPrev || prev != candidate {
			d.icmpMu.Lock()
			if token.Cancelled() {
				d.icmpMu.Unlock()

				return
			}

			newEntry := &StatusEntry{Status: candidate, At: time.Now()}
			old := d.status
			d.status = newEntry
			d.icmpMu.Unlock()

			if old != nil && r.log != nil {
				desc := conf.Desc()
				switch candidate {
				case Up:
					r.log.Note(fmt.Sprintf("Device %s is up", desc))
				case Down:
					r.log.Log(xlog.Error, fmt.Sprintf("Device %s is down", desc))
				}
			}

			r.hub.publish(DeviceChange{
				Kind:     IPv4Status,
				DeviceID: conf.ID,
				Old:      old,
				New:      newEntry,
			})

			status = newEntry
		}

		time.Sleep(repeatSleep)
	}
}

// statusValue reports the observed ServiceStatus of a (possibly nil)
// StatusEntry and whether one is present at all; an absent prior status
// always counts as differing from any candidate, so the first observation
// is always published.
func (s *StatusEntry) statusValue() (ServiceStatus, bool) {
	if s == nil {
		return 0, false
	}

	return s.Status, true
}

// probe attempts one ping with attemptTimeout, and on timeout enters a
// confirmation loop of up to defaultConfirmAttempts further pings spaced
// attemptTimeout apart. Any success yields Up; otherwise Down.
func (r *Devices) probe(ip netip.Addr, attemptTimeout time.Duration) ServiceStatus {
	if r.pingOnce(ip, attemptTimeout) {
		return Up
	}

	for range defaultConfirmAttempts {
		time.Sleep(attemptTimeout)

		if r.pingOnce(ip, attemptTimeout) {
			return Up
		}
	}

	return Down
}

// pingOnce issues a single ping with the given deadline and reports
// success.
func (r *Devices) pingOnce(ip netip.Addr, timeout time.Duration) bool {
	ctx, cancelFn := context.WithTimeout(context.Background(), timeout)
	defer cancelFn()

	_, err := r.pinger.Ping(ctx, ip)

	return err == nil
}
