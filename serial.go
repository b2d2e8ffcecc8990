// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package elemer

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/grid-x/serial"
	bugst "go.bug.st/serial"
)

const (
	// Read timeout of drivers that need one to return from a blocking read.
	serialTimeout = 5 * time.Second
	// Dial timeout of serial-to-Ethernet gateways.
	tcpTimeout = 10 * time.Second
)

// SerialConfig is the line configuration a Link opens its port with. The
// line is always 8 data bits, no parity, one stop bit, no flow control.
type SerialConfig struct {
	// Name is the device path (or host:port for TCPOpener).
	Name string
	// BaudRate is one of the menu rates, DefaultBaudRate when zero.
	BaudRate int
	// DTR and RTS are the control line states asserted after open.
	DTR bool
	RTS bool
	// ReadTimeout makes blocking reads return periodically. Zero leaves
	// the driver default.
	ReadTimeout time.Duration
}

func (c SerialConfig) baudRate() int {
	if c.BaudRate == 0 {
		return DefaultBaudRate
	}
	return c.BaudRate
}

// Opener opens the physical port described by a SerialConfig.
type Opener interface {
	Open(cfg SerialConfig) (io.ReadWriteCloser, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(cfg SerialConfig) (io.ReadWriteCloser, error)

// Open calls f(cfg).
func (f OpenerFunc) Open(cfg SerialConfig) (io.ReadWriteCloser, error) { return f(cfg) }

// Optional port capabilities.
type (
	controlLiner interface {
		SetDTR(dtr bool) error
		SetRTS(rts bool) error
	}
	baudSetter interface {
		SetBaudRate(rate int) error
	}
)

// BugstOpener opens RS-232 ports with go.bug.st/serial. It supports control
// lines, read timeouts and changing the line speed of an open port.
type BugstOpener struct{}

// Open opens cfg.Name.
func (BugstOpener) Open(cfg SerialConfig) (io.ReadWriteCloser, error) {
	port, err := bugst.Open(cfg.Name, bugstMode(cfg.baudRate()))
	if err != nil {
		return nil, err
	}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, err
		}
	}
	return &bugstPort{Port: port}, nil
}

func bugstMode(rate int) *bugst.Mode {
	return &bugst.Mode{
		BaudRate: rate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
}

type bugstPort struct {
	bugst.Port
}

func (p *bugstPort) SetBaudRate(rate int) error {
	return p.SetMode(bugstMode(rate))
}

// SerialPorts lists the serial ports present on the system.
func SerialPorts() ([]string, error) {
	return bugst.GetPortsList()
}

// RS485Opener opens ports with github.com/grid-x/serial, which can drive the
// RTS line of half-duplex RS-485 adapters around each transmission.
type RS485Opener struct {
	RS485 serial.RS485Config
}

// Open opens cfg.Name.
func (o RS485Opener) Open(cfg SerialConfig) (io.ReadWriteCloser, error) {
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = serialTimeout
	}
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Name,
		BaudRate: cfg.baudRate(),
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  timeout,
		RS485:    o.RS485,
	})
	if err != nil {
		return nil, err
	}
	return &rs485Port{port: port}, nil
}

type rs485Port struct {
	port io.ReadWriteCloser
}

// Read reports an expired read timeout as an empty read.
func (p *rs485Port) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if errors.Is(err, serial.ErrTimeout) {
		err = nil
	}
	return n, err
}

func (p *rs485Port) Write(b []byte) (int, error) { return p.port.Write(b) }

func (p *rs485Port) Close() error { return p.port.Close() }

// TCPOpener reaches an instrument through a serial-to-Ethernet gateway. The
// gateway owns the line settings; cfg.Name is its host:port.
type TCPOpener struct {
	// Timeout bounds the dial, tcpTimeout when zero.
	Timeout time.Duration
	// Dial replaces net.Dialer when set.
	Dial func(network, address string) (net.Conn, error)
}

// Open dials cfg.Name.
func (o TCPOpener) Open(cfg SerialConfig) (io.ReadWriteCloser, error) {
	dial := o.Dial
	if dial == nil {
		timeout := o.Timeout
		if timeout <= 0 {
			timeout = tcpTimeout
		}
		dialer := net.Dialer{Timeout: timeout}
		dial = dialer.Dial
	}
	conn, err := dial("tcp", cfg.Name)
	if err != nil {
		return nil, err
	}
	return &tcpPort{conn: conn, readTimeout: cfg.ReadTimeout}, nil
}

type tcpPort struct {
	conn        net.Conn
	readTimeout time.Duration
}

// Read arms the read deadline before each read and reports an expired
// deadline as an empty read.
func (p *tcpPort) Read(b []byte) (int, error) {
	var deadline time.Time
	if p.readTimeout > 0 {
		deadline = time.Now().Add(p.readTimeout)
	}
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	n, err := p.conn.Read(b)
	if netError, ok := err.(net.Error); ok && netError.Timeout() {
		err = nil
	}
	return n, err
}

func (p *tcpPort) Write(b []byte) (int, error) { return p.conn.Write(b) }

func (p *tcpPort) Close() error { return p.conn.Close() }

// OpenerByName returns the opener of a driver name: "rs232" (default),
// "rs485" or "tcp".
func OpenerByName(driver string) (Opener, error) {
	switch driver {
	case "", "rs232":
		return BugstOpener{}, nil
	case "rs485":
		return RS485Opener{RS485: serial.RS485Config{Enabled: true, RtsHighDuringSend: true}}, nil
	case "tcp":
		return TCPOpener{}, nil
	}
	return nil, fmt.Errorf("elemer: unknown driver %q", driver)
}
