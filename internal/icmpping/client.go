// Package icmpping implements the ICMP echo client: an async Ping that
// multiplexes many concurrent probes over a single raw ICMPv4 socket using
// identifier/sequence correlation, with the blocking send/receive syscalls
// run on dedicated goroutines bridged back to the rest of the program over
// channels.
package icmpping

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/desertwitch/netwatch/internal/xlog"
)

// errClosed is returned by Ping once the Client has been closed.
var errClosed = errors.New("icmpping: client closed")

// queueDepth bounds the internal channels connecting the client's three
// goroutines. It is generous relative to any realistic device fleet.
const queueDepth = 1000

type pingRequest struct {
	ip    netip.Addr
	reply chan time.Duration
}

type sendJob struct {
	ip  netip.Addr
	id  uint16
	seq uint16
}

type rawReply struct {
	seq uint16
	src netip.Addr
	at  time.Time
}

type pendingEntry struct {
	dest     netip.Addr
	sendTime time.Time
	reply    chan time.Duration
}

// Client multiplexes concurrent Ping calls over a single raw ICMPv4 socket.
type Client struct {
	id     uint16
	fd     int
	logger *log.Logger

	requests chan pingRequest
	sendJobs chan sendJob
	replies  chan rawReply

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient opens a raw ICMPv4 socket and starts the request-serializer,
// send, and receive goroutines. Opening the socket requires raw-socket
// capability (root or CAP_NET_RAW); failure here is fatal at startup.
func NewClient(logger *log.Logger) (*Client, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_ICMP)
	if err != nil {
		return nil, fmt.Errorf("failure opening raw ICMPv4 socket: %w", err)
	}

	c := &Client{
		//nolint:gosec // identifier/sequence need not be cryptographically random
		id:       uint16(rand.Intn(1 << 16)),
		fd:       fd,
		logger:   logger,
		requests: make(chan pingRequest, queueDepth),
		sendJobs: make(chan sendJob, queueDepth),
		replies:  make(chan rawReply, queueDepth),
		done:     make(chan struct{}),
	}

	go c.sendLoop()
	go c.recvLoop()
	go c.serializeLoop()

	return c, nil
}

// Close stops the client's goroutines and releases the underlying socket.
func (c *Client) Close() error {
	var err error

	c.closeOnce.Do(func() {
		close(c.done)
		err = unix.Close(c.fd)
	})

	return err
}

// Ping resolves when the next matching echo reply for ip is observed, or
// when ctx is done — the caller is responsible for imposing its own
// deadline; this client applies none of its own and never retries.
func (c *Client) Ping(ctx context.Context, ip netip.Addr) (time.Duration, error) {
	reply := make(chan time.Duration, 1)

	select {
	case c.requests <- pingRequest{ip: ip, reply: reply}:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-c.done:
		return 0, errClosed
	}

	select {
	case d := <-reply:
		return d, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-c.done:
		return 0, errClosed
	}
}

// serializeLoop is the single owner of the sequence-correlation map: it
// assigns each outbound request the next sequence number, dispatches the
// send, and matches inbound replies (already filtered by identifier in
// recvLoop) back to their waiting caller by sequence and source address.
func (c *Client) serializeLoop() {
	defer xlog.RecoverGoPanic("icmpping-serializer", c.logger)

	//nolint:gosec // not security sensitive
	seq := uint16(rand.Intn(1 << 16))
	pending := make(map[uint16]pendingEntry, queueDepth)

	for {
		select {
		case req := <-c.requests:
			pending[seq] = pendingEntry{dest: req.ip, sendTime: time.Now(), reply: req.reply}

			select {
			case c.sendJobs <- sendJob{ip: req.ip, id: c.id, seq: seq}:
			case <-c.done:
				return
			}

			seq++
		case r := <-c.replies:
			entry, ok := pending[r.seq]
			if !ok || entry.dest != r.src {
				continue
			}

			delete(pending, r.seq)

			d := r.at.Sub(entry.sendTime)
			if d < 0 {
				d = 0
			}

			select {
			case entry.reply <- d:
			default:
			}
		case <-c.done:
			return
		}
	}
}

// sendLoop formats and sends echo requests. It runs on its own goroutine
// because the underlying socket syscall is blocking.
func (c *Client) sendLoop() {
	defer xlog.RecoverGoPanic("icmpping-send", c.logger)

	for {
		select {
		case job := <-c.sendJobs:
			packet := buildEchoRequest(job.id, job.seq)
			addr := &unix.SockaddrInet4{Addr: job.ip.As4()}

			if err := unix.Sendto(c.fd, packet, 0, addr); err != nil && c.logger != nil {
				c.logger.Printf("icmpping: send to %s failed: %v", job.ip, err)
			}
		case <-c.done:
			return
		}
	}
}

// recvLoop reads raw packets off the socket, parses and filters them, and
// forwards matching echo replies to the serializer. It runs on its own
// goroutine because the underlying socket syscall is blocking.
func (c *Client) recvLoop() {
	defer xlog.RecoverGoPanic("icmpping-recv", c.logger)

	buf := make([]byte, 1500)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		n, from, err := unix.Recvfrom(c.fd, buf, 0)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}

			if c.logger != nil {
				c.logger.Printf("icmpping: recvfrom failed: %v", err)
			}

			continue
		}

		at := time.Now()

		id, seq, ok := parseEchoReply(buf[:n])
		if !ok || id != c.id {
			continue
		}

		src, ok := sockaddrToAddr(from)
		if !ok {
			continue
		}

		select {
		case c.replies <- rawReply{seq: seq, src: src, at: at}:
		case <-c.done:
			return
		}
	}
}

func sockaddrToAddr(sa unix.Sockaddr) (netip.Addr, bool) {
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return netip.Addr{}, false
	}

	return netip.AddrFrom4(sa4.Addr), true
}
