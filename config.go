package elemer

import (
	"errors"
	"fmt"
	"time"

	"github.com/grid-x/elemer/logger"
)

// Default timings.
const (
	DefaultReplyTimeout     = 3 * time.Second
	DefaultIdentityTimeout  = 1 * time.Second
	DefaultOpenWait         = 1 * time.Second
	DefaultCloseWait        = 1 * time.Second
	DefaultConnectCloseWait = 2 * time.Second
	DefaultSettleDelay      = 50 * time.Millisecond
	DefaultPollInterval     = 10 * time.Millisecond
)

type config struct {
	port     string
	baudRate int
	policy   LinkPolicy
	dtr      bool
	rts      bool
	opener   Opener

	replyTimeout     time.Duration
	identityTimeout  time.Duration
	identitySet      bool
	openWait         time.Duration
	closeWait        time.Duration
	connectCloseWait time.Duration
	settle           time.Duration
	pollInterval     time.Duration

	logger    logger.Logger
	onMessage MessageHandler
}

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{
		baudRate:         DefaultBaudRate,
		policy:           PolicyPersistent,
		opener:           BugstOpener{},
		replyTimeout:     DefaultReplyTimeout,
		identityTimeout:  DefaultIdentityTimeout,
		openWait:         DefaultOpenWait,
		closeWait:        DefaultCloseWait,
		connectCloseWait: DefaultConnectCloseWait,
		settle:           DefaultSettleDelay,
		logger:           logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Option configures a Session.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithPort sets the port name, a device path such as /dev/ttyUSB0 or COM3.
func WithPort(name string) Option {
	return optFunc(func(cfg *config) error {
		cfg.port = name
		return nil
	})
}

// WithBaudRate sets the line speed. It must be one of the menu rates.
func WithBaudRate(rate int) Option {
	return optFunc(func(cfg *config) error {
		if _, err := BaudFromRate(rate); err != nil {
			return err
		}
		cfg.baudRate = rate
		return nil
	})
}

// WithLinkPolicy sets when the port is opened and closed.
func WithLinkPolicy(p LinkPolicy) Option {
	return optFunc(func(cfg *config) error {
		if p != PolicyPersistent && p != PolicyPerTransaction {
			return fmt.Errorf("elemer: invalid link policy %v", p)
		}
		cfg.policy = p
		return nil
	})
}

// WithControlLines sets the DTR and RTS states asserted after each open.
// Both are off by default.
func WithControlLines(dtr, rts bool) Option {
	return optFunc(func(cfg *config) error {
		cfg.dtr, cfg.rts = dtr, rts
		return nil
	})
}

// WithOpener sets the port driver, BugstOpener by default.
func WithOpener(o Opener) Option {
	return optFunc(func(cfg *config) error {
		if o == nil {
			return errors.New("elemer: opener must not be nil")
		}
		cfg.opener = o
		return nil
	})
}

// WithReplyTimeout bounds the wait for a command reply.
func WithReplyTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return errors.New("elemer: reply timeout must be positive")
		}
		cfg.replyTimeout = d
		return nil
	})
}

// WithIdentityTimeout bounds the wait for an identity reply. Without it
// the timeout is DefaultIdentityTimeout, raised to the catalog timeout of
// the expected model when that is longer.
func WithIdentityTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return errors.New("elemer: identity timeout must be positive")
		}
		cfg.identityTimeout = d
		cfg.identitySet = true
		return nil
	})
}

// WithLinkWaits bounds the waits for open and close confirmations.
// connectClose applies to the close that starts every Connect.
func WithLinkWaits(open, close, connectClose time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if open <= 0 || close <= 0 || connectClose <= 0 {
			return errors.New("elemer: link waits must be positive")
		}
		cfg.openWait, cfg.closeWait, cfg.connectCloseWait = open, close, connectClose
		return nil
	})
}

// WithSettleDelay sets the pause between a confirmed open and the first
// request.
func WithSettleDelay(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < 0 {
			return errors.New("elemer: settle delay must not be negative")
		}
		cfg.settle = d
		return nil
	})
}

// WithPollInterval makes the link wake up every d to collect input, for
// drivers that do not reliably return from a blocking read. Zero means
// DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < 0 {
			return errors.New("elemer: poll interval must not be negative")
		}
		if d == 0 {
			d = DefaultPollInterval
		}
		cfg.pollInterval = d
		return nil
	})
}

// WithLogger sets the logger, the package default logger otherwise.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("elemer: logger must not be nil")
		}
		cfg.logger = l
		return nil
	})
}

// WithMessageHandler receives the user facing messages of the session.
func WithMessageHandler(h MessageHandler) Option {
	return optFunc(func(cfg *config) error {
		cfg.onMessage = h
		return nil
	})
}
