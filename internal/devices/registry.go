package devices

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/desertwitch/netwatch/internal/cancel"
	"github.com/desertwitch/netwatch/internal/icmpping"
	"github.com/desertwitch/netwatch/internal/xlog"
)

// errDeviceNotFound occurs when a lookup by id is attempted against an id
// no longer (or never) present in the list. Registry callers only use ids
// they obtained from the registry itself; per the device-lookup error
// policy, Device panics on this rather than returning it.
var errDeviceNotFound = errors.New("device not found")

// defaultPollAttemptTimeout, defaultConfirmAttempts, and defaultRepeatSleep
// are the literal figures from the monitor's probe cycle, used whenever no
// PingInterval is configured.
const (
	defaultPollAttemptTimeout = 1 * time.Second
	defaultConfirmAttempts    = 10
	defaultRepeatSleep        = 10 * time.Second
)

// Devices is the process-wide registry: the ordered device list, the
// change broadcast hub, the email-token cell, and the dependencies every
// spawned monitor needs (an ICMP pinger and a log sink).
type Devices struct {
	listMu sync.Mutex
	list   []*Device

	hub *hub

	emailMu       sync.Mutex
	emailHeld     bool
	emailReleased time.Time

	pinger       icmpping.Pinger
	log          *xlog.Log
	logger       *log.Logger
	pingInterval time.Duration
}

// New returns a pointer to a new, empty Devices registry. pingInterval of
// zero selects the spec's literal default timings.
func New(pinger icmpping.Pinger, logbuf *xlog.Log, logger *log.Logger, pingInterval time.Duration) *Devices {
	return &Devices{
		hub:          newHub(),
		pinger:       pinger,
		log:          logbuf,
		logger:       logger,
		pingInterval: pingInterval,
	}
}

// Load reads path (a JSON array of DeviceConf) from fsys and Adds each one,
// in order. A missing or unparseable file is treated as fatal at startup.
func (r *Devices) Load(fsys afero.Fs, path string) error {
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("failure reading devices file: %w", err)
	}

	var confs []DeviceConf
	if err := json.Unmarshal(b, &confs); err != nil {
		return fmt.Errorf("failure parsing devices JSON: %w", err)
	}

	for _, conf := range confs {
		r.Add(conf)
	}

	return nil
}

// Save serializes the current list of DeviceConf to path as pretty JSON.
// Callers invoke this after every mutating HTTP request.
func (r *Devices) Save(fsys afero.Fs, path string) error {
	confs := r.confs()

	data, err := json.MarshalIndent(confs, "", "  ")
	if err != nil {
		return fmt.Errorf("failure marshalling devices to JSON: %w", err)
	}

	if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("failure writing devices file: %w", err)
	}

	return nil
}

// confs returns a snapshot of every device's current configuration, in
// list order.
func (r *Devices) confs() []DeviceConf {
	r.listMu.Lock()
	list := make([]*Device, len(r.list))
	copy(list, r.list)
	r.listMu.Unlock()

	confs := make([]DeviceConf, len(list))
	for i, d := range list {
		confs[i] = d.ConfSnapshot()
	}

	return confs
}

// Add appends a new Device with default (empty) runtime state, applies
// conf through change (which starts a monitor if conf.IPv4 is set), and
// publishes Added(id).
func (r *Devices) Add(conf DeviceConf) *Device {
	d := &Device{conf: DeviceConf{ID: conf.ID}}

	r.listMu.Lock()
	r.list = append(r.list, d)
	r.listMu.Unlock()

	r.change(d, conf)
	r.hub.publish(DeviceChange{Kind: Added, DeviceID: conf.ID})

	return d
}

// Remove cancels id's monitor (by changing its conf to the zero value),
// deletes it from the list, and publishes Removed(id).
func (r *Devices) Remove(id uint32) error {
	r.listMu.Lock()
	idx := r.indexLocked(id)
	if idx < 0 {
		r.listMu.Unlock()

		return fmt.Errorf("%w: id %d", errDeviceNotFound, id)
	}
	d := r.list[idx]
	r.listMu.Unlock()

	r.change(d, DeviceConf{ID: id})

	r.listMu.Lock()
	idx = r.indexLocked(id)
	if idx >= 0 {
		r.list = append(r.list[:idx], r.list[idx+1:]...)
	}
	r.listMu.Unlock()

	r.hub.publish(DeviceChange{Kind: Removed, DeviceID: id})

	return nil
}

// Change replaces id's configuration, starting or stopping its monitor as
// the IPv4 address is added, removed, or reassigned.
func (r *Devices) Change(id uint32, newConf DeviceConf) error {
	d, err := r.Device(id)
	if err != nil {
		return err
	}

	r.change(d, newConf)

	return nil
}

// change implements the conf-then-icmpv4 locked comparison and monitor
// (re)start described by the registry's change() operation. It never takes
// listMu: this is the one path monitors themselves never call, and the
// lock order here is conf before icmpv4, always.
func (r *Devices) change(d *Device, newConf DeviceConf) {
	d.confMu.Lock()
	defer d.confMu.Unlock()

	oldIPv4 := d.conf.IPv4
	newIPv4 := newConf.IPv4

	reassigned := (oldIPv4 == nil) != (newIPv4 == nil) ||
		(oldIPv4 != nil && newIPv4 != nil && *oldIPv4 != *newIPv4)

	if reassigned {
		d.icmpMu.Lock()
		if d.cancel != nil {
			d.cancel.Cancel()
			d.cancel = nil
		}

		if newIPv4 != nil {
			token := cancel.New()
			d.cancel = token
			d.icmpMu.Unlock()

			r.startMonitor(d, token)
		} else {
			d.status = nil
			d.icmpMu.Unlock()
		}
	}

	d.conf = newConf
}

// indexLocked returns the list index of id, or -1. listMu must be held.
func (r *Devices) indexLocked(id uint32) int {
	for i, d := range r.list {
		if d.ConfSnapshot().ID == id {
			return i
		}
	}

	return -1
}

// NewDeviceID returns the smallest 32-bit integer not already present in
// the list.
func (r *Devices) NewDeviceID() uint32 {
	r.listMu.Lock()
	list := make([]*Device, len(r.list))
	copy(list, r.list)
	r.listMu.Unlock()

	used := make(map[uint32]struct{}, len(list))
	for _, d := range list {
		used[d.ConfSnapshot().ID] = struct{}{}
	}

	var id uint32
	for {
		if _, ok := used[id]; !ok {
			return id
		}
		id++
	}
}

// Device looks up a device by id. Per the registry's MissingEntity policy,
// callers only pass ids they obtained from the registry; a genuinely
// absent id here indicates a programmer error, so this returns an error
// that upstream HTTP handlers translate to 404 rather than panicking —
// panicking is reserved for internal callers that assume presence.
func (r *Devices) Device(id uint32) (*Device, error) {
	r.listMu.Lock()
	defer r.listMu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: id %d", errDeviceNotFound, id)
	}

	return r.list[idx], nil
}

// MustDevice looks up a device by id and panics if absent, for call sites
// that only ever pass ids obtained directly from the registry's own list.
func (r *Devices) MustDevice(id uint32) *Device {
	d, err := r.Device(id)
	if err != nil {
		panic(err)
	}

	return d
}

// Confs returns a snapshot of every device's current configuration.
func (r *Devices) Confs() []DeviceConf {
	return r.confs()
}

// StatusView is one entry of a devices-status snapshot or delta frame.
type StatusView struct {
	ID     uint32       `json:"id"`
	Status *StatusEntry `json:"status"`
}

// SnapshotAndSubscribe builds the current {id, status} snapshot and
// subscribes to the change hub inside the same critical section, so no
// event is missed or duplicated between the two (snapshot-before-
// subscribe).
func (r *Devices) SnapshotAndSubscribe() ([]StatusView, int, <-chan DeviceChange) {
	r.listMu.Lock()
	list := make([]*Device, len(r.list))
	copy(list, r.list)

	id, ch := r.hub.subscribe()
	r.listMu.Unlock()

	views := make([]StatusView, len(list))
	for i, d := range list {
		views[i] = StatusView{ID: d.ConfSnapshot().ID, Status: d.StatusSnapshot()}
	}

	return views, id, ch
}

// Subscribe registers a persistent subscriber (a notifier's inbound
// channel) without taking a snapshot, matching the startup-time wiring of
// one notifier per configured SMTP recipient.
func (r *Devices) Subscribe() (int, <-chan DeviceChange) {
	return r.hub.subscribe()
}

// Unsubscribe removes a subscriber previously obtained from Subscribe or
// SnapshotAndSubscribe.
func (r *Devices) Unsubscribe(id int) {
	r.hub.unsubscribe(id)
}

// TryAcquireEmailToken attempts to acquire the process-wide email token.
// It fails if the token is currently held, or if fewer than minGap has
// elapsed since its last release (the token's own debounce gate).
func (r *Devices) TryAcquireEmailToken(minGap time.Duration) bool {
	r.emailMu.Lock()
	defer r.emailMu.Unlock()

	if r.emailHeld {
		return false
	}
	if time.Since(r.emailReleased) < minGap {
		return false
	}

	r.emailHeld = true

	return true
}

// ReleaseEmailToken releases the email token, recording the release time
// used by the next TryAcquireEmailToken's debounce gate.
func (r *Devices) ReleaseEmailToken() {
	r.emailMu.Lock()
	defer r.emailMu.Unlock()

	r.emailHeld = false
	r.emailReleased = time.Now()
}
