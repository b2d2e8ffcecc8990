// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package elemer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grid-x/elemer/internal/pool"
	"github.com/grid-x/elemer/logger"
)

// Session is the logical connection to one addressed instrument of an
// expected type. It turns the asynchronous link into blocking calls with a
// single request outstanding at a time.
//
//	Disconnected -> Connect (identity) -> Connected -> Call ... -> Connected
//
// A reply timeout or a link failure returns the session to Disconnected.
type Session struct {
	expected        DeviceType
	cfg             *config
	identityTimeout time.Duration
	logger          logger.Logger

	link   *link
	notify *notifier

	// connMu serializes Connect; callMu allows one exchange at a time.
	// connMu is always taken before callMu.
	connMu sync.Mutex
	callMu sync.Mutex

	connected atomic.Bool
	address   atomic.Uint32
	lastCode  atomic.Int64

	lineMu sync.Mutex
	line   SerialConfig

	closeOnce sync.Once
}

var _ linkObserver = (*Session)(nil)

// NewSession creates a session for an instrument of type expected and starts
// its link. The port is not opened until Connect.
func NewSession(expected DeviceType, opts ...Option) (*Session, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	s := &Session{
		expected:        expected,
		cfg:             cfg,
		identityTimeout: cfg.identityTimeout,
		logger:          cfg.logger.With("device", expected.String()),
		notify:          newNotifier(),
		line: SerialConfig{
			Name:        cfg.port,
			BaudRate:    cfg.baudRate,
			DTR:         cfg.dtr,
			RTS:         cfg.rts,
			ReadTimeout: cfg.pollInterval,
		},
	}
	if model, ok := LookupModel(expected); ok && !cfg.identitySet && model.Timeout > s.identityTimeout {
		s.identityTimeout = model.Timeout
	}
	s.link = newLink(cfg.opener, s.line, s.notify, s, s.logger)
	return s, nil
}

// Expected returns the device type the session accepts.
func (s *Session) Expected() DeviceType { return s.expected }

// Address returns the instrument address of the last successful identity
// query or address change.
func (s *Session) Address() uint8 { return uint8(s.address.Load()) }

// Connected reports whether the instrument answered the last exchange.
func (s *Session) Connected() bool { return s.connected.Load() }

// LastReturnCode returns the code of the last status reply.
func (s *Session) LastReturnCode() int { return int(s.lastCode.Load()) }

// Port returns the current line configuration.
func (s *Session) Port() SerialConfig {
	s.lineMu.Lock()
	defer s.lineMu.Unlock()
	return s.line
}

// Connect (re)establishes the session with the instrument at address.
// portName and baud override the configured line when non-empty and
// non-zero. The link is closed first so that the attempt starts clean; a
// close that is not confirmed in time is logged and tolerated. Connect fails
// with *IdentityMismatchError when the instrument is not of the expected
// type.
func (s *Session) Connect(ctx context.Context, portName string, baud int, address uint8) (bool, error) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.connected.Store(false)
	if n := s.notify.drain(); n > 0 {
		s.logger.Debug("drained stale notifications", "count", n)
	}

	// The close is best effort: only a stopped link or a cancelled context
	// end the attempt.
	if err := s.closeLink(ctx, s.cfg.connectCloseWait); err != nil {
		if errors.Is(err, ErrLinkStopped) || ctx.Err() != nil {
			return false, err
		}
		s.logger.Warn("proceeding without close confirmation", "error", err)
	}

	if portName != "" || baud != 0 {
		if err := s.reconfigure(portName, baud); err != nil {
			return false, err
		}
	}

	opened := false
	if s.cfg.policy == PolicyPersistent {
		if err := s.openLink(ctx); err != nil {
			return false, err
		}
		opened = true
	}

	s.callMu.Lock()
	id, err := s.identify(ctx, address)
	s.callMu.Unlock()
	if err == nil && id.Type != s.expected {
		err = &IdentityMismatchError{Expected: s.expected, Reported: id.Type}
		s.report(MessageWarning, "unexpected device", err)
	}
	if err != nil {
		if opened {
			if cerr := s.closeLink(ctx, s.cfg.closeWait); cerr != nil {
				s.logger.Warn("close after failed connect", "error", cerr)
			}
		}
		return false, err
	}

	s.connected.Store(true)
	line := s.Port()
	s.logger.Info("connected", "port", line.Name, "baud", line.baudRate(), "address", s.Address())
	return true, nil
}

func (s *Session) reconfigure(portName string, baud int) error {
	if baud != 0 {
		if _, err := BaudFromRate(baud); err != nil {
			return err
		}
	}
	s.lineMu.Lock()
	if portName != "" {
		s.line.Name = portName
	}
	if baud != 0 {
		s.line.BaudRate = baud
	}
	line := s.line
	s.lineMu.Unlock()
	return s.link.configure(line)
}

// Identify queries the address and type of the instrument at address. On
// success the session addresses the instrument at the address it reported,
// so a query to address 0 learns the real address.
func (s *Session) Identify(ctx context.Context, address uint8) (Identity, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	return s.identify(ctx, address)
}

// identify must be called with callMu held.
func (s *Session) identify(ctx context.Context, address uint8) (Identity, error) {
	release, err := s.hold(ctx)
	if err != nil {
		return Identity{}, err
	}
	defer release()

	f, err := s.exchange(ctx, address, CmdIdentify, s.identityTimeout)
	if err != nil {
		return Identity{}, err
	}
	id, err := decodeIdentity(f)
	if err != nil {
		return Identity{}, err
	}
	s.address.Store(uint32(id.Address))
	return id, nil
}

// Call sends command with args to the instrument and returns the fields of
// its validated reply. The session must be connected.
func (s *Session) Call(ctx context.Context, command Command, args ...any) (Fields, error) {
	if !s.connected.Load() {
		return nil, ErrNotConnected
	}
	s.callMu.Lock()
	defer s.callMu.Unlock()

	release, err := s.hold(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.exchange(ctx, s.Address(), command, s.cfg.replyTimeout, args...)
}

// Write sends a write-style command and decodes the status of the reply.
// A reply that is not OK returns the status together with a *DeviceError.
func (s *Session) Write(ctx context.Context, command Command, args ...any) (Status, error) {
	f, err := s.Call(ctx, command, args...)
	if err != nil {
		return Status{}, err
	}
	st, err := decodeStatusReply(f)
	if err != nil {
		return Status{}, err
	}
	s.lastCode.Store(int64(st.Code))
	if !st.OK() {
		return st, &DeviceError{Command: command, Code: st.Code}
	}
	return st, nil
}

// WriteHex sends values as a single Hex field with a write-style command.
func (s *Session) WriteHex(ctx context.Context, command Command, values ...any) (Status, error) {
	h, err := ToHex(values...)
	if err != nil {
		return Status{}, err
	}
	return s.Write(ctx, command, h)
}

// ReadValue sends command and decodes the first value field of the reply.
func ReadValue[T Number](ctx context.Context, s *Session, command Command, args ...any) (T, error) {
	var zero T
	f, err := s.Call(ctx, command, args...)
	if err != nil {
		return zero, err
	}
	v := values(f)
	if v.Len() == 0 {
		return zero, ErrShortReply
	}
	return DecodeText[T](v.At(0))
}

// ReadValues sends command and decodes n value fields of the reply, or all
// of them when n is zero. A reply without value fields is ErrShortReply.
func ReadValues[T Number](ctx context.Context, s *Session, command Command, n int, args ...any) ([]T, error) {
	f, err := s.Call(ctx, command, args...)
	if err != nil {
		return nil, err
	}
	v := values(f)
	if n == 0 {
		n = v.Len()
	}
	if n == 0 || v.Len() < n {
		return nil, ErrShortReply
	}
	out := make([]T, n)
	for i := range out {
		if out[i], err = DecodeText[T](v.At(i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReadHex sends command and decodes the first value field of the reply as
// the little-endian layout of T.
func ReadHex[T any](ctx context.Context, s *Session, command Command, args ...any) (T, error) {
	var zero T
	f, err := s.Call(ctx, command, args...)
	if err != nil {
		return zero, err
	}
	v := values(f)
	if v.Len() == 0 {
		return zero, ErrShortReply
	}
	return DecodeHex[T](v.At(0))
}

// exchange performs one request and reply. It must be called with callMu
// held and inside hold.
func (s *Session) exchange(ctx context.Context, address uint8, command Command, timeout time.Duration, args ...any) (Fields, error) {
	req, err := BuildRequest(address, command, args...)
	if err != nil {
		return nil, err
	}
	if n := s.notify.drain(); n > 0 {
		s.logger.Debug("drained stale notifications", "count", n)
	}
	if err := s.link.write(req); err != nil {
		return nil, err
	}

	ev, err := s.notify.acquire(ctx, eventFrame, timeout, s.discard)
	if errors.Is(err, errWaitTimeout) {
		s.connected.Store(false)
		s.report(MessageError, fmt.Sprintf("no reply to %v from address %d", command, address), ErrReplyTimeout)
		return nil, ErrReplyTimeout
	}
	if err != nil {
		return nil, err
	}

	f, err := ValidateAndSplit(ev.frame)
	if err != nil {
		s.report(MessageWarning, fmt.Sprintf("invalid reply to %v", command), err)
		return nil, err
	}
	return f, nil
}

// openLink opens the port and waits for the confirmation and settle delay.
func (s *Session) openLink(ctx context.Context) error {
	if err := s.link.open(); err != nil {
		return err
	}
	ev, err := s.notify.acquire(ctx, eventOpened, s.cfg.openWait, s.discard)
	if errors.Is(err, errWaitTimeout) {
		s.report(MessageError, "no open confirmation", ErrOpenTimeout)
		return ErrOpenTimeout
	}
	if err != nil {
		return err
	}
	if ev.err != nil {
		return ev.err
	}
	return pool.Sleep(ctx, s.cfg.settle)
}

// closeLink closes the port and waits up to wait for the confirmation.
func (s *Session) closeLink(ctx context.Context, wait time.Duration) error {
	if err := s.link.close(); err != nil {
		return err
	}
	ev, err := s.notify.acquire(ctx, eventClosed, wait, s.discard)
	if errors.Is(err, errWaitTimeout) {
		return ErrCloseTimeout
	}
	if err != nil {
		return err
	}
	return ev.err
}

func (s *Session) discard(ev linkEvent) {
	s.logger.Debug("discarding stale notification", "event", ev.kind)
}

// Close closes the port and stops the link. The session cannot be used
// afterwards.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.connMu.Lock()
		defer s.connMu.Unlock()
		s.callMu.Lock()
		defer s.callMu.Unlock()

		s.connected.Store(false)
		s.link.stop()
		s.logger.Debug("session closed")
	})
	return nil
}

func (s *Session) report(kind MessageKind, text string, err error) {
	msg := Message{Kind: kind, Text: text, Err: err}
	switch kind {
	case MessageError:
		s.logger.Error(text, "error", err)
	case MessageWarning:
		s.logger.Warn(text, "error", err)
	default:
		s.logger.Info(text)
	}
	if s.cfg.onMessage != nil {
		s.cfg.onMessage(msg)
	}
}

func (s *Session) linkMessage(kind MessageKind, text string, err error) {
	s.report(kind, text, err)
}

func (s *Session) linkFailed(error) {
	s.connected.Store(false)
}
