package elemer

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
)

// fakeInstrument answers requests the way an instrument on the line would.
// Replies for commands other than identify and set address come from
// replies (fields) or raw (verbatim bytes). Identify is also answered on
// address 0.
type fakeInstrument struct {
	mu sync.Mutex

	address  uint8
	typ      DeviceType
	replies  map[Command][]string
	raw      map[Command][]byte
	noise    []byte
	silent   bool
	chunked  bool
	delay    time.Duration
	openErr  error
	closeErr error

	requests    []Fields
	opens       int
	closes      int
	lastConfig  SerialConfig
	baudChanges []int
	dtr, rts    bool

	outstanding    int
	maxOutstanding int
}

func newFakeInstrument(address uint8, typ DeviceType) *fakeInstrument {
	return &fakeInstrument{
		address: address,
		typ:     typ,
		replies: make(map[Command][]string),
		raw:     make(map[Command][]byte),
	}
}

func (in *fakeInstrument) set(f func(in *fakeInstrument)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	f(in)
}

type instrumentStats struct {
	address        uint8
	requests       []Fields
	opens          int
	closes         int
	lastConfig     SerialConfig
	baudChanges    []int
	dtr, rts       bool
	maxOutstanding int
}

func (in *fakeInstrument) stats() instrumentStats {
	in.mu.Lock()
	defer in.mu.Unlock()
	return instrumentStats{
		address:        in.address,
		requests:       append([]Fields(nil), in.requests...),
		opens:          in.opens,
		closes:         in.closes,
		lastConfig:     in.lastConfig,
		baudChanges:    append([]int(nil), in.baudChanges...),
		dtr:            in.dtr,
		rts:            in.rts,
		maxOutstanding: in.maxOutstanding,
	}
}

func (in *fakeInstrument) opener() Opener {
	return OpenerFunc(func(cfg SerialConfig) (io.ReadWriteCloser, error) {
		in.mu.Lock()
		defer in.mu.Unlock()
		in.lastConfig = cfg
		if in.openErr != nil {
			return nil, in.openErr
		}
		in.opens++
		return &fakePort{in: in, rx: make(chan []byte, 256), closed: make(chan struct{})}, nil
	})
}

// handle returns the reply to one request frame, nil for silence.
func (in *fakeInstrument) handle(req []byte) []byte {
	in.mu.Lock()
	defer in.mu.Unlock()

	if len(req) < parcelPreamble || req[0] != parcelMarker || req[1] != parcelSeparator {
		return nil
	}
	fields, err := ValidateAndSplit(append([]byte{replyStart}, req[parcelPreamble:]...))
	if err != nil || fields.Len() < 2 {
		return nil
	}
	in.requests = append(in.requests, fields)
	if in.silent {
		return nil
	}
	address, _ := DecodeText[uint8](fields.At(0))
	command, _ := DecodeText[uint8](fields.At(1))
	if address != in.address && !(address == 0 && Command(command) == CmdIdentify) {
		return nil
	}

	var reply []byte
	switch cmd := Command(command); {
	case in.raw[cmd] != nil:
		reply = in.raw[cmd]
	case in.replies[cmd] != nil:
		reply = buildReply(in.replies[cmd]...)
	case cmd == CmdIdentify:
		reply = buildReply(strconv.Itoa(int(in.address)), strconv.Itoa(int(in.typ)))
	case cmd == CmdSetAddress:
		next, err := DecodeText[uint8](fields.At(2))
		if err != nil {
			return buildReply("$1")
		}
		in.address = next
		reply = buildReply("$0")
	default:
		reply = buildReply("$0")
	}
	return append(append([]byte(nil), in.noise...), reply...)
}

// fakePort delivers replies through a channel. Read is only called from the
// link reader goroutine.
type fakePort struct {
	in        *fakeInstrument
	rx        chan []byte
	pending   []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case p.pending = <-p.rx:
		case <-p.closed:
			return 0, io.EOF
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	reply := p.in.handle(b)
	if reply == nil {
		return len(b), nil
	}

	p.in.mu.Lock()
	chunked, delay := p.in.chunked, p.in.delay
	p.in.outstanding++
	if p.in.outstanding > p.in.maxOutstanding {
		p.in.maxOutstanding = p.in.outstanding
	}
	p.in.mu.Unlock()

	deliver := func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		p.in.mu.Lock()
		p.in.outstanding--
		p.in.mu.Unlock()
		if chunked {
			for i := range reply {
				p.push(reply[i : i+1])
			}
			return
		}
		p.push(reply)
	}
	if delay > 0 {
		go deliver()
	} else {
		deliver()
	}
	return len(b), nil
}

func (p *fakePort) push(chunk []byte) {
	select {
	case p.rx <- chunk:
	case <-p.closed:
	}
}

func (p *fakePort) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		p.in.mu.Lock()
		p.in.closes++
		err = p.in.closeErr
		p.in.mu.Unlock()
	})
	return err
}

func (p *fakePort) SetBaudRate(rate int) error {
	p.in.mu.Lock()
	defer p.in.mu.Unlock()
	p.in.baudChanges = append(p.in.baudChanges, rate)
	return nil
}

func (p *fakePort) SetDTR(dtr bool) error {
	p.in.set(func(in *fakeInstrument) { in.dtr = dtr })
	return nil
}

func (p *fakePort) SetRTS(rts bool) error {
	p.in.set(func(in *fakeInstrument) { in.rts = rts })
	return nil
}

// serve answers requests arriving on conn until it is closed, like a
// serial-to-Ethernet gateway with the instrument behind it.
func (in *fakeInstrument) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		req, err := r.ReadBytes(frameEnd)
		if err != nil {
			return
		}
		if reply := in.handle(bytes.Clone(req)); reply != nil {
			if _, err := conn.Write(reply); err != nil {
				return
			}
		}
	}
}
