// Package config loads and persists the program's JSON configuration
// document (data/config.json) and hands out a mutex-guarded handle that
// is shared between the devices registry, the notifiers, and the HTTP
// server.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/afero"
)

// errInvalidArgument occurs whenever a given argument is invalid or missing.
var errInvalidArgument = errors.New("invalid argument")

// Smtp is the outbound mail configuration. The recievers field keeps its
// canonical misspelling — it is the on-disk JSON key this program reads
// and writes.
type Smtp struct {
	Server    string   `json:"server"`
	From      string   `json:"from"`
	User      string   `json:"user"`
	Password  string   `json:"password"`
	Recievers []string `json:"recievers"`
}

// User is a single login credential pair.
type User struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Settings is the subset of Configuration exposed through GET/POST /settings.
type Settings struct {
	WebPort      uint16 `json:"web_port"`
	PingInterval uint32 `json:"ping_interval"`
}

// Configuration is the full persisted document.
type Configuration struct {
	Settings
	Smtp  *Smtp  `json:"smtp"`
	Users []User `json:"users"`
}

// Handle is a mutex-guarded, shared Configuration.
type Handle struct {
	mu  sync.Mutex
	cfg Configuration
}

// Load reads path from fsys, parses it as JSON, and returns a Handle.
// Failure is treated as fatal at startup, per the program's IO error policy.
func Load(fsys afero.Fs, path string) (*Handle, error) {
	if fsys == nil {
		return nil, fmt.Errorf("%w: nil filesystem", errInvalidArgument)
	}

	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failure reading configuration file: %w", err)
	}

	var cfg Configuration
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failure parsing configuration JSON: %w", err)
	}

	return &Handle{cfg: cfg}, nil
}

// Snapshot returns a copy of the current Configuration.
func (h *Handle) Snapshot() Configuration {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg := h.cfg
	if h.cfg.Smtp != nil {
		smtp := *h.cfg.Smtp
		smtp.Recievers = append([]string(nil), h.cfg.Smtp.Recievers...)
		cfg.Smtp = &smtp
	}
	cfg.Users = append([]User(nil), h.cfg.Users...)

	return cfg
}

// SettingsSnapshot returns a copy of just the web_port/ping_interval subset.
func (h *Handle) SettingsSnapshot() Settings {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.cfg.Settings
}

// UpdateSettings applies new settings if both fields are non-zero, matching
// the POST /settings validation rule, and returns whether it applied them.
func (h *Handle) UpdateSettings(s Settings) bool {
	if s.WebPort == 0 || s.PingInterval == 0 {
		return false
	}

	h.mu.Lock()
	h.cfg.Settings = s
	h.mu.Unlock()

	return true
}

// Save serializes the current Configuration to path as pretty JSON.
func (h *Handle) Save(fsys afero.Fs, path string) error {
	h.mu.Lock()
	cfg := h.cfg
	h.mu.Unlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failure marshalling configuration to JSON: %w", err)
	}

	if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("failure writing configuration file: %w", err)
	}

	return nil
}

// Recievers returns the configured SMTP recipient addresses, or nil if SMTP
// is not configured.
func (h *Handle) Recievers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg.Smtp == nil {
		return nil
	}

	return append([]string(nil), h.cfg.Smtp.Recievers...)
}

// SmtpConfig returns a copy of the SMTP configuration, or nil if unset.
func (h *Handle) SmtpConfig() *Smtp {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg.Smtp == nil {
		return nil
	}

	smtp := *h.cfg.Smtp
	smtp.Recievers = append([]string(nil), h.cfg.Smtp.Recievers...)

	return &smtp
}

// Authenticate reports whether name/password match a configured User.
func (h *Handle) Authenticate(name, password string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, u := range h.cfg.Users {
		if u.Name == name && u.Password == password {
			return true
		}
	}

	return false
}
