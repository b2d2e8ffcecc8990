package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/grid-x/elemer"
	"github.com/grid-x/elemer/logger"
)

type option struct {
	ports    []string
	baud     int
	address  uint
	device   string
	policy   string
	driver   string
	dtr      bool
	rts      bool
	timeout  time.Duration
	command  string
	value    string
	logLevel string
}

func main() {
	var (
		opt        option
		ports      string
		configFile string
		list       bool
	)
	flag.StringVar(&ports, "port", "/dev/ttyUSB0", "Serial port, or host:port with -driver tcp. Several comma separated ports are queried concurrently")
	flag.IntVar(&opt.baud, "baud", elemer.DefaultBaudRate, "Symbol rate: 300, 600, 1200, 2400, 4800, 9600, 19200")
	flag.UintVar(&opt.address, "address", 1, "Instrument address")
	flag.StringVar(&opt.device, "type", "", "Expected device type, code or model name. Empty accepts the reported type")
	flag.StringVar(&opt.policy, "policy", "persistent", "Link policy: persistent, per-transaction")
	flag.StringVar(&opt.driver, "driver", "rs232", "Port driver: rs232, rs485, tcp")
	flag.BoolVar(&opt.dtr, "dtr", false, "Assert DTR after open")
	flag.BoolVar(&opt.rts, "rts", false, "Assert RTS after open")
	flag.DurationVar(&opt.timeout, "timeout", elemer.DefaultReplyTimeout, "Reply timeout")
	flag.StringVar(&opt.command, "cmd", "identify", "Command: identify, measure, status, version, set-address, set-baud, read-param, file-read")
	flag.StringVar(&opt.value, "value", "", "Command argument: new address, baud rate, parameter number or byte count")
	flag.StringVar(&opt.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flag.StringVar(&configFile, "config", "", "TOML file with defaults for the flags above")
	flag.BoolVar(&list, "list", false, "List the serial ports and exit")

	flag.Parse()

	if len(os.Args) == 1 {
		flag.PrintDefaults()
		return
	}

	if list {
		names, err := elemer.SerialPorts()
		if err != nil {
			logger.Error(err.Error())
			os.Exit(-1)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	opt.ports = normalizePorts(strings.Split(ports, ","))
	if configFile != "" {
		explicit := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		if err := loadConfig(configFile, &opt, explicit); err != nil {
			logger.Error(err.Error())
			os.Exit(-1)
		}
	}

	log, err := newLogger(opt.logLevel)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(-1)
	}

	results, err := run(context.Background(), opt, log, os.Stderr)
	if err != nil {
		log.Error(err.Error())
		os.Exit(-1)
	}
	out, failed := resultsToString(results)
	fmt.Print(out)
	if failed {
		os.Exit(1)
	}
}

type result struct {
	port  string
	rows  [][2]string
	err   error
	ready bool
}

// run executes the command against every port concurrently and waits for all
// of them on the completion barrier.
func run(ctx context.Context, opt option, log logger.Logger, messages io.Writer) ([]result, error) {
	if len(opt.ports) == 0 {
		return nil, errors.New("no port given")
	}
	if opt.address > 255 {
		return nil, fmt.Errorf("invalid address: %d", opt.address)
	}
	device, err := parseDeviceType(opt.device)
	if err != nil {
		return nil, err
	}
	policy, err := elemer.ParseLinkPolicy(opt.policy)
	if err != nil {
		return nil, err
	}
	opener, err := elemer.OpenerByName(opt.driver)
	if err != nil {
		return nil, err
	}
	// Forwarded rates are for the instrument; a gateway sets its own line.
	if opt.driver == "tcp" {
		opt.baud = 0
	}
	sessionOpts := []elemer.Option{
		elemer.WithOpener(opener),
		elemer.WithLinkPolicy(policy),
		elemer.WithControlLines(opt.dtr, opt.rts),
		elemer.WithReplyTimeout(opt.timeout),
	}
	if opt.baud != 0 {
		sessionOpts = append(sessionOpts, elemer.WithBaudRate(opt.baud))
	}
	if opt.driver == "tcp" {
		sessionOpts = append(sessionOpts, elemer.WithPollInterval(0))
	}

	var (
		mu      sync.Mutex
		msgMu   sync.Mutex
		results = make([]result, len(opt.ports))
	)
	elemer.BarrierReset()
	for i, port := range opt.ports {
		i, port := i, port
		results[i].port = port
		go func() {
			defer elemer.BarrierDone()
			printer := messagePrinter{mu: &msgMu, w: messages, port: port}
			opts := append(sessionOpts[:len(sessionOpts):len(sessionOpts)],
				elemer.WithPort(port),
				elemer.WithLogger(log.With("port", port)),
				elemer.WithMessageHandler(printer.handle))
			rows, err := query(ctx, device, uint8(opt.address), opt.command, opt.value, opts)

			mu.Lock()
			results[i].rows, results[i].err, results[i].ready = rows, err, true
			mu.Unlock()
		}()
	}

	// Every port may need a connect close-wait, an identity query and the
	// command itself.
	budget := elemer.DefaultConnectCloseWait + elemer.DefaultOpenWait + 2*time.Second + 2*opt.timeout
	if !elemer.BarrierWait(len(opt.ports), budget) {
		log.Warn("not every port finished in time", "ports", len(opt.ports))
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]result, len(results))
	copy(out, results)
	for i := range out {
		if !out[i].ready {
			out[i].err = elemer.ErrReplyTimeout
		}
	}
	return out, nil
}

// query connects to one instrument and runs command. An empty expected type
// accepts whatever the instrument reports.
func query(ctx context.Context, expected elemer.DeviceType, address uint8, command, value string, opts []elemer.Option) ([][2]string, error) {
	s, err := elemer.NewSession(expected, opts...)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	_, err = s.Connect(ctx, "", 0, address)
	var mismatch *elemer.IdentityMismatchError
	if errors.As(err, &mismatch) && expected == elemer.UnknownDevice {
		s.Close()
		if s, err = elemer.NewSession(mismatch.Reported, opts...); err != nil {
			return nil, err
		}
		defer s.Close()
		_, err = s.Connect(ctx, "", 0, address)
	}
	if err != nil {
		return nil, err
	}
	return exec(ctx, s, command, value)
}

func exec(ctx context.Context, inst elemer.Instrument, command, value string) ([][2]string, error) {
	switch command {
	case "identify":
		id, err := inst.Identify(ctx, inst.Address())
		if err != nil {
			return nil, err
		}
		model, _ := elemer.LookupModel(id.Type)
		return [][2]string{
			{"address", strconv.Itoa(int(id.Address))},
			{"type", strconv.Itoa(int(id.Type))},
			{"model", id.Type.String()},
			{"protocol", model.Protocol.String()},
		}, nil
	case "measure":
		values, err := inst.ReadMeasured(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([][2]string, len(values))
		for i, v := range values {
			rows[i] = [2]string{fmt.Sprintf("channel %d", i+1), strconv.FormatFloat(v, 'f', -1, 64)}
		}
		return rows, nil
	case "status":
		st, err := inst.ReadStatus(ctx)
		if err != nil {
			return nil, err
		}
		return [][2]string{{"status", fmt.Sprintf("0x%08X", st)}}, nil
	case "version":
		v, err := inst.FirmwareVersion(ctx)
		if err != nil {
			return nil, err
		}
		return [][2]string{{"firmware", v}}, nil
	case "set-address":
		a, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", value, err)
		}
		if err := inst.SetAddress(ctx, uint8(a)); err != nil {
			return nil, err
		}
		return [][2]string{{"address", strconv.Itoa(int(inst.Address()))}}, nil
	case "set-baud":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid baud rate %q: %w", value, err)
		}
		b, err := elemer.BaudFromRate(rate)
		if err != nil {
			return nil, err
		}
		if err := inst.SetBaudRate(ctx, b); err != nil {
			return nil, err
		}
		return [][2]string{{"baud", strconv.Itoa(rate)}}, nil
	case "read-param":
		p, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter %q: %w", value, err)
		}
		fields, err := inst.ReadParam(ctx, uint16(p))
		if err != nil {
			return nil, err
		}
		rows := make([][2]string, fields.Len())
		for i, f := range fields.Strings() {
			rows[i] = [2]string{fmt.Sprintf("value %d", i), f}
		}
		return rows, nil
	case "file-read":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid byte count %q: %w", value, err)
		}
		if err := inst.FileOpen(ctx); err != nil {
			return nil, err
		}
		data, err := inst.FileRead(ctx, n)
		if cerr := inst.FileClose(ctx); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, err
		}
		return [][2]string{{"data", fmt.Sprintf("% X", data)}}, nil
	}
	return nil, fmt.Errorf("command %s is unsupported", command)
}

// parseDeviceType accepts a type code or a catalog model name, ignoring case,
// spaces and dashes.
func parseDeviceType(s string) (elemer.DeviceType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return elemer.UnknownDevice, nil
	}
	if code, err := strconv.ParseUint(s, 10, 16); err == nil {
		return elemer.DeviceType(code), nil
	}
	want := normalizeModel(s)
	for code := 1; code <= 0xFF; code++ {
		m, ok := elemer.LookupModel(elemer.DeviceType(code))
		if ok && normalizeModel(m.Name) == want {
			return m.Type, nil
		}
	}
	return elemer.UnknownDevice, fmt.Errorf("unknown device type %q", s)
}

func normalizeModel(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "/", "").Replace(strings.ToUpper(s))
}

func resultsToString(results []result) (string, bool) {
	buf := new(bytes.Buffer)
	w := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
	failed := false
	for _, r := range results {
		if r.err != nil {
			failed = true
			fmt.Fprintf(w, "%s\terror\t%v\t\n", r.port, r.err)
			continue
		}
		for _, row := range r.rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t\n", r.port, row[0], row[1])
		}
	}
	w.Flush()
	return buf.String(), failed
}
