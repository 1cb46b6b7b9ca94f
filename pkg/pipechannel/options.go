package pipechannel

import (
	"fmt"
	"strings"
	"time"

	"github.com/sammck-go/pipechan/pkg/pipemsg"
	"github.com/sammck-go/pipechan/pkg/pipenet"
	pipeshare "github.com/sammck-go/pipechan/share"
)

// Role selects which end of a pipe a Channel is
type Role int

const (
	// Initiator connects to a named endpoint
	Initiator Role = iota

	// Listener waits for an initiator on a named endpoint
	Listener
)

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Listener:
		return "listener"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole accepts "initiator" or "client", and "listener" or "server"
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "initiator", "client":
		return Initiator, nil
	case "listener", "server":
		return Listener, nil
	}
	return 0, fmt.Errorf("unknown channel role %q", s)
}

// Config holds the optional settings of a Channel. The zero value (or a nil
// *Config) gives the defaults.
type Config struct {
	// Dir is the directory holding unix endpoint sockets. Defaults to os.TempDir().
	// Ignored on Windows.
	Dir string

	// Logger receives the channel's log output. Defaults to a logger that only
	// reports fatal errors.
	Logger pipeshare.Logger

	// Registry resolves typed messages for SendMessage and Codec. Defaults to
	// pipemsg.Default().
	Registry *pipemsg.Registry

	// MinRetryInterval and MaxRetryInterval bound the backoff used while waiting
	// for a peer or for the endpoint to become free.
	MinRetryInterval time.Duration
	MaxRetryInterval time.Duration

	// CloseDrainTimeout bounds how long an initiator's Close waits for the peer
	// to read pending data. Zero waits indefinitely.
	CloseDrainTimeout time.Duration
}

func (cfg *Config) withDefaults() Config {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.Logger == nil {
		c.Logger = pipeshare.NewNilLogger()
	}
	if c.Registry == nil {
		c.Registry = pipemsg.Default()
	}
	if c.MinRetryInterval <= 0 {
		c.MinRetryInterval = pipenet.DefaultMinRetryInterval
	}
	if c.MaxRetryInterval < c.MinRetryInterval {
		c.MaxRetryInterval = pipenet.DefaultMaxRetryInterval
		if c.MaxRetryInterval < c.MinRetryInterval {
			c.MaxRetryInterval = c.MinRetryInterval
		}
	}
	return c
}

func (cfg *Config) dialOptions() pipenet.DialOptions {
	return pipenet.DialOptions{
		MinRetryInterval: cfg.MinRetryInterval,
		MaxRetryInterval: cfg.MaxRetryInterval,
	}
}
