package elemer

import (
	"fmt"
	"time"
)

// DeviceType is the type code an instrument reports to CmdIdentify.
type DeviceType uint16

// ProtocolFamily is the command protocol an instrument model speaks.
type ProtocolFamily uint8

const (
	// ProtocolASCII is the checksummed ASCII parcel protocol.
	ProtocolASCII ProtocolFamily = iota
	// ProtocolModBus marks models that speak ModBus; not implemented here.
	ProtocolModBus
)

func (p ProtocolFamily) String() string {
	switch p {
	case ProtocolASCII:
		return "ascii"
	case ProtocolModBus:
		return "modbus"
	}
	return fmt.Sprintf("protocol(%d)", uint8(p))
}

// Model describes one instrument model of the catalog.
type Model struct {
	Type      DeviceType
	Name      string
	Timeout   time.Duration
	Channels  int
	Setpoints int
	Protocol  ProtocolFamily
}

// Known device types.
const (
	UnknownDevice DeviceType = 0

	TM5233       DeviceType = 1
	TM5232       DeviceType = 2
	IRT1730DOld  DeviceType = 3
	IRT1730U     DeviceType = 4
	IRT1730D     DeviceType = 5
	TM5231       DeviceType = 6
	RMT49D       DeviceType = 7
	TM5101       DeviceType = 8
	IRT5920      DeviceType = 9
	IRTM2405     DeviceType = 10
	PMT39D       DeviceType = 11
	USD01        DeviceType = 12
	AIR2         DeviceType = 13
	IKSU2000     DeviceType = 15
	TM513x       DeviceType = 16
	TM5102       DeviceType = 17
	IRT1730UA    DeviceType = 18
	IRT1730DA    DeviceType = 19
	RMT39DA      DeviceType = 20
	IKSU200      DeviceType = 21
	RMT49DA3     DeviceType = 22
	RMT49DA1     DeviceType = 23
	KDS02        DeviceType = 25
	TM5122A      DeviceType = 27
	IPM0399M0    DeviceType = 28
	IPM0399M3    DeviceType = 30
	RMT39DEx     DeviceType = 31
	RMT49DEx3    DeviceType = 32
	RMT49DEx1    DeviceType = 33
	ROSA10       DeviceType = 34
	IRT5501      DeviceType = 41
	RMT69        DeviceType = 42
	AIR30        DeviceType = 43
	RMT59        DeviceType = 46
	BPPS4090M1x  DeviceType = 48
	BPPS4090M124 DeviceType = 49
	IKSU260      DeviceType = 50
	BPPS4090Ex   DeviceType = 51
	TCM9610      DeviceType = 53
	IRT5502      DeviceType = 54
	IRT5503      DeviceType = 55
	IRT5504      DeviceType = 56
	EL4019       DeviceType = 57
	IRT1730NM    DeviceType = 58
	EL4015       DeviceType = 59
	EL4024       DeviceType = 60
	IRT5940      DeviceType = 65
	RMT69M       DeviceType = 70
	IRT5922MB    DeviceType = 71
	RMT69L       DeviceType = 72
	TM5102D      DeviceType = 73
	TM5103D      DeviceType = 74
	TM5104D      DeviceType = 75
	KP140E       DeviceType = 76
	RMT49        DeviceType = 77
	DDPNK        DeviceType = 78
	KSxE         DeviceType = 80
	AKVT03       DeviceType = 255
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

var catalog = map[DeviceType]Model{
	UnknownDevice: {UnknownDevice, "Unknown device", ms(1200), 0, 0, ProtocolASCII},
	TM5233:        {TM5233, "TM 5233", ms(400), 8, 8, ProtocolASCII},
	TM5232:        {TM5232, "TM 5232", ms(400), 4, 8, ProtocolASCII},
	IRT1730DOld:   {IRT1730DOld, "IRT 1730D Old", ms(400), 1, 2, ProtocolASCII},
	IRT1730U:      {IRT1730U, "IRT 1730U", ms(400), 1, 2, ProtocolASCII},
	IRT1730D:      {IRT1730D, "IRT 1730D", ms(400), 1, 2, ProtocolASCII},
	TM5231:        {TM5231, "TM 5231", ms(400), 8, 0, ProtocolASCII},
	RMT49D:        {RMT49D, "RMT 49D", ms(400), 3, 12, ProtocolASCII},
	TM5101:        {TM5101, "TM 5101", ms(400), 6, 12, ProtocolASCII},
	IRT5920:       {IRT5920, "IRT 5920(30)", ms(150), 1, 3, ProtocolASCII},
	IRTM2405:      {IRTM2405, "IRTM-2405", ms(400), 128, 0, ProtocolASCII},
	PMT39D:        {PMT39D, "PMT 39D", ms(400), 6, 24, ProtocolASCII},
	USD01:         {USD01, "USD-01", ms(400), 1, 0, ProtocolASCII},
	AIR2:          {AIR2, "AIR-2", ms(1200), 3, 0, ProtocolASCII},
	IKSU2000:      {IKSU2000, "IKSU-2000", ms(2000), 1, 0, ProtocolASCII},
	TM513x:        {TM513x, "TM 513x", ms(400), 8, 0, ProtocolASCII},
	TM5102:        {TM5102, "TM 5102(3)", ms(400), 8, 0, ProtocolASCII},
	IRT1730UA:     {IRT1730UA, "IRT 1730U/A", ms(400), 1, 2, ProtocolASCII},
	IRT1730DA:     {IRT1730DA, "IRT 1730D/A", ms(400), 1, 2, ProtocolASCII},
	RMT39DA:       {RMT39DA, "RMT 39DA", ms(400), 6, 24, ProtocolASCII},
	IKSU200:       {IKSU200, "IKSU-200", ms(2000), 1, 0, ProtocolASCII},
	RMT49DA3:      {RMT49DA3, "RMT 49DA/3", ms(400), 3, 12, ProtocolASCII},
	RMT49DA1:      {RMT49DA1, "RMT 49DA/1", ms(400), 1, 4, ProtocolASCII},
	KDS02:         {KDS02, "KDS-02", ms(600), 1, 0, ProtocolASCII},
	TM5122A:       {TM5122A, "TM 5122A", ms(400), 4, 0, ProtocolASCII},
	IPM0399M0:     {IPM0399M0, "IPM 0399/M0", ms(400), 1, 0, ProtocolASCII},
	IPM0399M3:     {IPM0399M3, "IPM 0399/M3", ms(1200), 1, 3, ProtocolASCII},
	RMT39DEx:      {RMT39DEx, "RMT 39DEx", ms(400), 6, 24, ProtocolASCII},
	RMT49DEx3:     {RMT49DEx3, "RMT 49DEx/3", ms(400), 3, 12, ProtocolASCII},
	RMT49DEx1:     {RMT49DEx1, "RMT 49DEx/1", ms(400), 1, 4, ProtocolASCII},
	ROSA10:        {ROSA10, "ROSA-10", ms(400), 2, 0, ProtocolASCII},
	IRT5501:       {IRT5501, "IRT 5501", ms(400), 1, 0, ProtocolASCII},
	RMT69:         {RMT69, "RMT 69", ms(1000), 6, 0, ProtocolASCII},
	AIR30:         {AIR30, "AIR 30", ms(400), 1, 0, ProtocolASCII},
	RMT59:         {RMT59, "RMT 59", ms(1000), 6, 0, ProtocolASCII},
	BPPS4090M1x:   {BPPS4090M1x, "BPPS 4090/M1x", ms(400), 2, 0, ProtocolASCII},
	BPPS4090M124:  {BPPS4090M124, "BPPS 4090 .M12/4", ms(400), 4, 0, ProtocolASCII},
	IKSU260:       {IKSU260, "IKSU-260", ms(400), 1, 0, ProtocolASCII},
	BPPS4090Ex:    {BPPS4090Ex, "BPPS 4090 Ex", ms(400), 1, 0, ProtocolASCII},
	TCM9610:       {TCM9610, "TCM 9610", ms(400), 2, 0, ProtocolASCII},
	IRT5502:       {IRT5502, "IRT 5502", ms(400), 2, 0, ProtocolASCII},
	IRT5503:       {IRT5503, "IRT 5503", ms(400), 1, 0, ProtocolASCII},
	IRT5504:       {IRT5504, "IRT 5504", ms(400), 2, 0, ProtocolASCII},
	EL4019:        {EL4019, "EL-4019", ms(400), 8, 0, ProtocolASCII},
	IRT1730NM:     {IRT1730NM, "IRT 1730NM", ms(400), 1, 0, ProtocolASCII},
	EL4015:        {EL4015, "EL-4015", ms(400), 6, 0, ProtocolASCII},
	EL4024:        {EL4024, "EL-4024", ms(400), 4, 0, ProtocolASCII},
	IRT5940:       {IRT5940, "IRT 5940", ms(400), 1, 0, ProtocolASCII},
	RMT69M:        {RMT69M, "RMT 69M", ms(1000), 6, 0, ProtocolASCII},
	IRT5922MB:     {IRT5922MB, "IRT 5922MB", ms(400), 1, 0, ProtocolModBus},
	RMT69L:        {RMT69L, "RMT 69L", ms(1000), 6, 0, ProtocolASCII},
	TM5102D:       {TM5102D, "TM 5102D", ms(400), 4, 0, ProtocolModBus},
	TM5103D:       {TM5103D, "TM 5103D", ms(400), 8, 0, ProtocolModBus},
	TM5104D:       {TM5104D, "TM 5104D", ms(400), 16, 0, ProtocolModBus},
	KP140E:        {KP140E, "KP-140E", ms(400), 1, 0, ProtocolModBus},
	RMT49:         {RMT49, "RMT 49", ms(1000), 3, 0, ProtocolASCII},
	DDPNK:         {DDPNK, "DDPN-K", ms(400), 1, 0, ProtocolASCII},
	KSxE:          {KSxE, "KS-xE", ms(1000), 6, 0, ProtocolASCII},
	AKVT03:        {AKVT03, "AKVT-03", ms(400), 3, 0, ProtocolModBus},
}

// LookupModel returns the catalog entry of t.
func LookupModel(t DeviceType) (Model, bool) {
	m, ok := catalog[t]
	return m, ok
}

func (t DeviceType) String() string {
	if m, ok := catalog[t]; ok {
		return m.Name
	}
	return fmt.Sprintf("device(%d)", uint16(t))
}

// Baud is an index into the line speed menu, as transmitted by CmdSetBaudRate.
type Baud uint8

// Line speed menu.
const (
	Baud300 Baud = iota
	Baud600
	Baud1200
	Baud2400
	Baud4800
	Baud9600
	Baud19200
)

var baudRates = [...]int{300, 600, 1200, 2400, 4800, 9600, 19200}

// DefaultBaudRate is the line speed instruments ship with.
const DefaultBaudRate = 9600

// Rate returns the line speed in bits per second, or 0 for an invalid index.
func (b Baud) Rate() int {
	if int(b) >= len(baudRates) {
		return 0
	}
	return baudRates[b]
}

// BaudFromRate returns the menu index of rate.
func BaudFromRate(rate int) (Baud, error) {
	for i, r := range baudRates {
		if r == rate {
			return Baud(i), nil
		}
	}
	return 0, fmt.Errorf("elemer: baud rate '%v' is not one of %v", rate, baudRates)
}
