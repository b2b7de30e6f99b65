// Package devices implements the runtime device registry: the authoritative
// device list, per-device monitor lifecycle, and the change broadcast that
// feeds both the WebSocket status stream and the per-recipient notifiers.
package devices

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/desertwitch/netwatch/internal/cancel"
)

// ServiceStatus is the observed reachability of a device.
type ServiceStatus int

const (
	// Up indicates the device answered its last probe.
	Up ServiceStatus = iota
	// Down indicates the device failed its last probe (after debounce).
	Down
)

// String returns the textual representation of a ServiceStatus.
func (s ServiceStatus) String() string {
	switch s {
	case Up:
		return "Up"
	case Down:
		return "Down"
	default:
		return "unknown"
	}
}

// StatusEntry pairs an observed ServiceStatus with the time it was recorded.
// A nil *StatusEntry means "never observed or monitoring disabled."
type StatusEntry struct {
	Status ServiceStatus
	At     time.Time
}

// Equal reports whether two (possibly nil) StatusEntry pointers carry the
// same status and timestamp.
func (s *StatusEntry) Equal(other *StatusEntry) bool {
	if s == nil && other == nil {
		return true
	}
	if s == nil || other == nil {
		return false
	}

	return s.Status == other.Status && s.At.Equal(other.At)
}

// MarshalJSON renders a StatusEntry as the externally-tagged wire shape
// {"Up": [seconds, nanos]} / {"Down": [seconds, nanos]}, and a nil receiver
// as JSON null.
func (s *StatusEntry) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}

	tuple := [2]int64{s.At.Unix(), int64(s.At.Nanosecond())}

	var obj map[string][2]int64
	switch s.Status {
	case Up:
		obj = map[string][2]int64{"Up": tuple}
	case Down:
		obj = map[string][2]int64{"Down": tuple}
	default:
		return nil, fmt.Errorf("devices: unknown status %d", s.Status)
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("devices: marshal status entry: %w", err)
	}

	return b, nil
}

// UnmarshalJSON parses the externally-tagged wire shape back into a
// StatusEntry, or leaves the receiver representing "absent" on JSON null.
func (s *StatusEntry) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var obj map[string][2]int64
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("devices: unmarshal status entry: %w", err)
	}

	if tuple, ok := obj["Up"]; ok {
		s.Status = Up
		s.At = time.Unix(tuple[0], tuple[1])

		return nil
	}

	if tuple, ok := obj["Down"]; ok {
		s.Status = Down
		s.At = time.Unix(tuple[0], tuple[1])

		return nil
	}

	return fmt.Errorf("devices: status entry has neither Up nor Down key")
}

// DeviceConf is the persisted, user-editable configuration of a device.
type DeviceConf struct {
	ID            uint32      `json:"id"`
	Name          *string     `json:"name,omitempty"`
	IPv4          *netip.Addr `json:"ipv4,omitempty"`
	SNMP          bool        `json:"snmp"`
	SNMPCommunity *string     `json:"snmp_community,omitempty"`
}

// Desc returns the device's display name: its configured Name if set, else
// its dotted IPv4 address if set, else a generic "<device #id>" fallback.
func (c DeviceConf) Desc() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	if c.IPv4 != nil {
		return c.IPv4.String()
	}

	return fmt.Sprintf("<device #%d>", c.ID)
}

// Device is the runtime handle for one configured device: a conf cell and
// an icmpv4 cell (current status plus the cancellation token of whichever
// monitor task currently owns it, if any). The registry holds one
// reference; an active monitor task holds another — lock order is always
// confMu before icmpMu.
type Device struct {
	confMu sync.Mutex
	conf   DeviceConf

	icmpMu sync.Mutex
	status *StatusEntry
	cancel *cancel.Token
}

// ConfSnapshot returns a copy of the device's current configuration.
func (d *Device) ConfSnapshot() DeviceConf {
	d.confMu.Lock()
	defer d.confMu.Unlock()

	return d.conf
}

// StatusSnapshot returns a copy of the device's current status cell.
func (d *Device) StatusSnapshot() *StatusEntry {
	d.icmpMu.Lock()
	defer d.icmpMu.Unlock()

	if d.status == nil {
		return nil
	}

	cp := *d.status

	return &cp
}

// ChangeKind identifies the variant of a DeviceChange event.
type ChangeKind int

const (
	// Added is emitted whenever a device is inserted into the registry.
	Added ChangeKind = iota
	// Removed is emitted whenever a device is deleted from the registry.
	Removed
	// IPv4Status is emitted whenever a device's observed status cell changes.
	IPv4Status
)

// DeviceChange is the broadcast event published by the registry on every
// add, remove, and status transition.
type DeviceChange struct {
	Kind     ChangeKind
	DeviceID uint32
	Old      *StatusEntry
	New      *StatusEntry
}
