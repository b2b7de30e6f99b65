package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/desertwitch/netwatch/internal/config"
	"github.com/desertwitch/netwatch/internal/devices"
	"github.com/desertwitch/netwatch/internal/xlog"
)

// Timing constants from the notifier's debounce/retry/token-poll design.
const (
	debounceWait      = 30 * time.Second
	retryWait         = 300 * time.Second
	tokenMinGap       = 30 * time.Second
	tokenPollInterval = 35 * time.Second
)

// emailTokenHolder is the subset of *devices.Devices a Notifier depends on
// for the process-wide email-token cell, extracted as an interface so
// tests can substitute a fake.
type emailTokenHolder interface {
	TryAcquireEmailToken(minGap time.Duration) bool
	ReleaseEmailToken()
}

// pendingChange is one buffered (device, new-status) pair awaiting an
// outgoing email.
type pendingChange struct {
	DeviceID uint32
	Status   devices.StatusEntry
}

// sendResult is reported by a detached send worker back to the notifier's
// select loop.
type sendResult struct {
	err    error
	buffer []pendingChange
}

// Notifier is the per-recipient task described in the notifier design: it
// buffers IPv4Status transitions, debounces them behind a 30-s timer and
// the process-wide email token, and retries on transport failure.
type Notifier struct {
	recipient string

	inbound <-chan devices.DeviceChange
	signal  chan struct{}
	result  chan sendResult

	registry  emailTokenHolder
	devLookup deviceLookuper
	conf      *config.Handle
	mailer    Mailer
	log       *xlog.Log
	logger    *log.Logger

	pending []pendingChange
	active  bool

	// Timing knobs, defaulted to the spec's literal figures by New and
	// overridable by tests to keep the debounce/retry scenarios fast.
	debounceWait      time.Duration
	retryWait         time.Duration
	tokenMinGap       time.Duration
	tokenPollInterval time.Duration
}

// deviceLookuper is the subset of *devices.Devices a Notifier needs to
// render a device's display name into the email body.
type deviceLookuper interface {
	Device(id uint32) (*devices.Device, error)
}

// New returns a pointer to a new Notifier for recipient, reading inbound
// DeviceChange events from ch.
func New(
	recipient string,
	ch <-chan devices.DeviceChange,
	registry emailTokenHolder,
	devLookup deviceLookuper,
	conf *config.Handle,
	mailer Mailer,
	logbuf *xlog.Log,
	logger *log.Logger,
) *Notifier {
	return &Notifier{
		recipient:         recipient,
		inbound:           ch,
		signal:            make(chan struct{}, 1),
		result:            make(chan sendResult, 1),
		registry:          registry,
		devLookup:         devLookup,
		conf:              conf,
		mailer:            mailer,
		log:               logbuf,
		logger:            logger,
		debounceWait:      debounceWait,
		retryWait:         retryWait,
		tokenMinGap:       tokenMinGap,
		tokenPollInterval: tokenPollInterval,
	}
}

// Run executes the notifier's select loop until ctx is done. It is meant
// to be launched on its own goroutine, one per configured SMTP recipient.
func (n *Notifier) Run(ctx context.Context) {
	defer xlog.RecoverGoPanic("notifier-"+n.recipient, n.logger)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-n.inbound:
			if !ok {
				return
			}
			n.handleChange(ctx, ev)

		case <-n.signal:
			n.handleSignal(ctx)

		case res := <-n.result:
			n.handleResult(ctx, res)
		}
	}
}

// handleChange buffers an IPv4Status transition where both old and new are
// present, and arms the debounce timer on the first buffered change. Any
// other event variant, or a transition to/from absent, is dropped.
func (n *Notifier) handleChange(ctx context.Context, ev devices.DeviceChange) {
	if ev.Kind != devices.IPv4Status || ev.Old == nil || ev.New == nil {
		return
	}

	n.pending = append(n.pending, pendingChange{DeviceID: ev.DeviceID, Status: *ev.New})

	if !n.active {
		n.active = true

		go n.scheduleSignal(ctx, n.debounceWait)
	}
}

// scheduleSignal sleeps wait, then polls for the email token, then fires
// the signal that triggers a send attempt.
func (n *Notifier) scheduleSignal(ctx context.Context, wait time.Duration) {
	defer xlog.RecoverGoPanic("notifier-timer-"+n.recipient, n.logger)

	if !sleepCtx(ctx, wait) {
		return
	}

	for {
		if n.registry.TryAcquireEmailToken(n.tokenMinGap) {
			break
		}
		if !sleepCtx(ctx, n.tokenPollInterval) {
			return
		}
	}

	select {
	case n.signal <- struct{}{}:
	case <-ctx.Done():
		n.registry.ReleaseEmailToken()
	}
}

// handleSignal swaps out the pending buffer and spawns the blocking SMTP
// send on a detached worker, reporting back over n.result.
func (n *Notifier) handleSignal(ctx context.Context) {
	buffer := n.pending
	n.pending = nil

	go func() {
		defer xlog.RecoverGoPanic("notifier-send-"+n.recipient, n.logger)

		err := n.sendEmail(ctx, buffer)

		select {
		case n.result <- sendResult{err: err, buffer: buffer}:
		case <-ctx.Done():
		}
	}()
}

// handleResult applies the outcome of a completed send: on success the
// buffer is already cleared and the notifier goes idle; on failure the
// buffer is restored (oldest first) and a 300-s retry timer is armed.
func (n *Notifier) handleResult(ctx context.Context, res sendResult) {
	n.registry.ReleaseEmailToken()

	if res.err == nil {
		n.active = false

		return
	}

	if n.log != nil {
		n.log.Log(xlog.Error, fmt.Sprintf("email to %s failed, retrying in %s: %v", n.recipient, n.retryWait, res.err))
	}

	n.pending = append(res.buffer, n.pending...)

	go n.scheduleSignal(ctx, n.retryWait)
}

// sendEmail formats the buffered changes and delivers them via n.mailer.
func (n *Notifier) sendEmail(ctx context.Context, buffer []pendingChange) error {
	smtpCfg := n.conf.SmtpConfig()
	if smtpCfg == nil {
		return fmt.Errorf("%w: no SMTP configuration present", errParseFailure)
	}

	body := n.formatBody(buffer)

	return n.mailer.Send(ctx, *smtpCfg, n.recipient, "Network changes", body)
}

// formatBody renders the buffered changes per the email-format design: a
// fixed preamble followed by one line per change.
func (n *Notifier) formatBody(buffer []pendingChange) string {
	var b strings.Builder

	b.WriteString("The following network changes were detected:\n\n")

	for _, c := range buffer {
		desc := n.deviceDesc(c.DeviceID)

		state := "down"
		if c.Status.Status == devices.Up {
			state = "up"
		}

		fmt.Fprintf(&b, " - Device `%s` went %s at %s\n", desc, state, c.Status.At.Format(time.RFC1123Z))
	}

	return b.String()
}

// deviceDesc resolves a device's display name, falling back to a generic
// placeholder if the device has since been removed from the registry.
func (n *Notifier) deviceDesc(id uint32) string {
	d, err := n.devLookup.Device(id)
	if err != nil {
		return fmt.Sprintf("<device #%d>", id)
	}

	return d.ConfSnapshot().Desc()
}

// sleepCtx sleeps for d or until ctx is done, reporting whether the sleep
// completed normally (false means ctx ended first).
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
