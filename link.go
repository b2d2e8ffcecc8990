// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package elemer

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/grid-x/elemer/logger"
)

const (
	linkQueueSize = 16
	readChunkSize = 256
	// Bytes kept without a frame terminator before they are dropped as noise.
	maxPending = 4096
)

type linkOp uint8

const (
	opOpen linkOp = iota
	opClose
	opWrite
	opConfigure
	opSetBaudRate
)

type linkRequest struct {
	op   linkOp
	data []byte
	cfg  SerialConfig
	rate int
}

type readResult struct {
	gen  uint64
	data []byte
	err  error
}

// linkObserver receives the link reports that are not completions.
type linkObserver interface {
	linkMessage(kind MessageKind, text string, err error)
	// linkFailed is called when an open port stops working.
	linkFailed(err error)
}

// link owns one physical port. Every port access happens on the run
// goroutine; callers post requests and learn about completions through the
// notifier.
type link struct {
	opener   Opener
	notify   *notifier
	observer linkObserver
	logger   logger.Logger

	requests chan linkRequest
	reads    chan readResult
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	isOpen atomic.Bool

	// Owned by run.
	cfg    SerialConfig
	port   io.ReadWriteCloser
	gen    uint64
	stopRd chan struct{}
	buf    []byte
}

func newLink(opener Opener, cfg SerialConfig, notify *notifier, observer linkObserver, log logger.Logger) *link {
	l := &link{
		opener:   opener,
		notify:   notify,
		observer: observer,
		logger:   log,
		requests: make(chan linkRequest, linkQueueSize),
		reads:    make(chan readResult, linkQueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		cfg:      cfg,
	}
	go l.run()
	return l
}

func (l *link) post(req linkRequest) error {
	select {
	case <-l.done:
		return ErrLinkStopped
	default:
	}
	select {
	case l.requests <- req:
		return nil
	case <-l.done:
		return ErrLinkStopped
	}
}

// open requests the port be opened. Exactly one eventOpened follows.
func (l *link) open() error { return l.post(linkRequest{op: opOpen}) }

// close requests the port be closed. Exactly one eventClosed follows.
func (l *link) close() error { return l.post(linkRequest{op: opClose}) }

// write sends frame verbatim if the port is open.
func (l *link) write(frame []byte) error { return l.post(linkRequest{op: opWrite, data: frame}) }

// configure replaces the line configuration used by the next open.
func (l *link) configure(cfg SerialConfig) error { return l.post(linkRequest{op: opConfigure, cfg: cfg}) }

// setBaudRate changes the line speed, immediately if the port supports it.
func (l *link) setBaudRate(rate int) error { return l.post(linkRequest{op: opSetBaudRate, rate: rate}) }

// opened reports whether the port is currently open.
func (l *link) opened() bool { return l.isOpen.Load() }

// stop closes the port and terminates the link goroutine.
func (l *link) stop() {
	l.stopOnce.Do(func() { close(l.quit) })
	<-l.done
}

func (l *link) run() {
	defer close(l.done)
	for {
		select {
		case req := <-l.requests:
			l.handle(req)
		case r := <-l.reads:
			l.receive(r)
		case <-l.quit:
			if err := l.closePort(); err != nil {
				l.logger.Warn("close on stop failed", "port", l.cfg.Name, "error", err)
			}
			return
		}
	}
}

func (l *link) handle(req linkRequest) {
	switch req.op {
	case opOpen:
		err := l.openPort()
		if err != nil {
			l.observer.linkMessage(MessageError, "could not open port", err)
		}
		l.signal(linkEvent{kind: eventOpened, err: err})
	case opClose:
		err := l.closePort()
		if err != nil {
			l.observer.linkMessage(MessageWarning, "could not close port", err)
		}
		l.signal(linkEvent{kind: eventClosed, err: err})
	case opWrite:
		l.writePort(req.data)
	case opConfigure:
		l.cfg = req.cfg
	case opSetBaudRate:
		l.cfg.BaudRate = req.rate
		if l.port == nil {
			return
		}
		if bs, ok := l.port.(baudSetter); ok {
			if err := bs.SetBaudRate(req.rate); err != nil {
				l.observer.linkMessage(MessageWarning, "could not change baud rate", err)
			}
			return
		}
		l.logger.Info("baud rate applies on next open", "port", l.cfg.Name, "baud", req.rate)
	}
}

func (l *link) signal(ev linkEvent) {
	if !l.notify.release(ev) {
		l.logger.Warn("notification dropped", "port", l.cfg.Name, "event", ev.kind)
	}
}

// openPort is a no-op when the port is already open.
func (l *link) openPort() error {
	if l.port != nil {
		return nil
	}
	port, err := l.opener.Open(l.cfg)
	if err != nil {
		return &OpenError{Port: l.cfg.Name, Err: err}
	}
	if cl, ok := port.(controlLiner); ok {
		if err := cl.SetDTR(l.cfg.DTR); err != nil {
			l.observer.linkMessage(MessageWarning, "could not set DTR", err)
		}
		if err := cl.SetRTS(l.cfg.RTS); err != nil {
			l.observer.linkMessage(MessageWarning, "could not set RTS", err)
		}
	}
	l.port = port
	l.buf = l.buf[:0]
	l.gen++
	l.stopRd = make(chan struct{})
	l.isOpen.Store(true)
	go l.read(port, l.gen, l.stopRd)

	l.logger.Debug("port opened", "port", l.cfg.Name, "baud", l.cfg.baudRate())
	return nil
}

// closePort is a no-op when the port is already closed.
func (l *link) closePort() error {
	if l.port == nil {
		return nil
	}
	close(l.stopRd)
	err := l.port.Close()
	l.port = nil
	l.buf = l.buf[:0]
	l.isOpen.Store(false)

	l.logger.Debug("port closed", "port", l.cfg.Name)
	return err
}

func (l *link) writePort(frame []byte) {
	if l.port == nil {
		l.observer.linkMessage(MessageWarning, "write dropped", ErrLinkClosed)
		return
	}
	l.logger.Debug("send", "port", l.cfg.Name, "frame", strconv.Quote(string(frame)))
	if _, err := l.port.Write(frame); err != nil {
		l.fail(fmt.Errorf("elemer: write %s: %w", l.cfg.Name, err))
	}
}

func (l *link) receive(r readResult) {
	if l.port == nil || r.gen != l.gen {
		return
	}
	if len(r.data) > 0 {
		l.accumulate(r.data)
	}
	if r.err != nil {
		l.fail(fmt.Errorf("elemer: read %s: %w", l.cfg.Name, r.err))
	}
}

// accumulate appends chunk and emits every complete frame it holds.
func (l *link) accumulate(chunk []byte) {
	l.buf = append(l.buf, chunk...)
	for {
		i := bytes.IndexByte(l.buf, frameEnd)
		if i < 0 {
			break
		}
		frame := make([]byte, i+1)
		copy(frame, l.buf)
		l.buf = l.buf[:copy(l.buf, l.buf[i+1:])]

		l.logger.Debug("recv", "port", l.cfg.Name, "frame", strconv.Quote(string(frame)))
		l.signal(linkEvent{kind: eventFrame, frame: frame})
	}
	if len(l.buf) > maxPending {
		l.logger.Warn("dropping unterminated input", "port", l.cfg.Name, "bytes", len(l.buf))
		l.buf = l.buf[:0]
	}
}

func (l *link) fail(err error) {
	if cerr := l.closePort(); cerr != nil {
		l.logger.Debug("close after failure", "port", l.cfg.Name, "error", cerr)
	}
	l.observer.linkMessage(MessageError, "link failure", err)
	l.observer.linkFailed(err)
}

// read forwards chunks of port to run until stop is closed. An empty read
// without error is an expired read timeout and only checks stop.
func (l *link) read(port io.Reader, gen uint64, stop <-chan struct{}) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := port.Read(buf)
		if n == 0 && err == nil {
			select {
			case <-stop:
				return
			default:
				continue
			}
		}
		r := readResult{gen: gen, err: err}
		if n > 0 {
			r.data = append([]byte(nil), buf[:n]...)
		}
		select {
		case l.reads <- r:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}
