package ptz

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Pelco-D command 2 bits.
const (
	pelcoRight    = 0x02
	pelcoLeft     = 0x04
	pelcoUp       = 0x08
	pelcoDown     = 0x10
	pelcoZoomTele = 0x20
	pelcoZoomWide = 0x40

	pelcoMaxSpeed = 0x3F
)

// pelcoFrame builds the 7-byte Pelco-D message. The checksum is the sum of
// bytes 2 to 6 modulo 256.
func pelcoFrame(addr, cmd1, cmd2, pan, tilt byte) []byte {
	sum := int(addr) + int(cmd1) + int(cmd2) + int(pan) + int(tilt)
	return []byte{0xFF, addr, cmd1, cmd2, pan, tilt, byte(sum % 256)}
}

// pelcoSpeed maps a speed in (0, 1] to the 1..63 pan/tilt range.
func pelcoSpeed(v float64) byte {
	s := math.Round(math.Abs(v) * pelcoMaxSpeed)
	return byte(max(1, min(s, pelcoMaxSpeed)))
}

// pelcoMove encodes a velocity. Pelco-D zoom has no speed.
func pelcoMove(addr byte, v Velocity) []byte {
	var cmd2, pan, tilt byte
	switch {
	case v.X > 0:
		cmd2 |= pelcoRight
	case v.X < 0:
		cmd2 |= pelcoLeft
	}
	if v.X != 0 {
		pan = pelcoSpeed(v.X)
	}
	switch {
	case v.Y > 0:
		cmd2 |= pelcoUp
	case v.Y < 0:
		cmd2 |= pelcoDown
	}
	if v.Y != 0 {
		tilt = pelcoSpeed(v.Y)
	}
	switch {
	case v.Z > 0:
		cmd2 |= pelcoZoomTele
	case v.Z < 0:
		cmd2 |= pelcoZoomWide
	}
	return pelcoFrame(addr, 0, cmd2, pan, tilt)
}

// SerialOpener opens a serial device.
type SerialOpener func(device string, mode *serial.Mode) (io.WriteCloser, error)

func openSerial(device string, mode *serial.Mode) (io.WriteCloser, error) {
	return serial.Open(device, mode)
}

// serialBus is one open line shared by every receiver wired to it.
// Pending safety stops are tracked per receiver address so that a later
// session for the same head cancels the stop armed by an earlier one.
type serialBus struct {
	mu   sync.Mutex // serialises writes
	port io.WriteCloser
	baud int

	armMu sync.Mutex
	armed map[byte]*time.Timer
}

func newSerialBus(port io.WriteCloser, baud int) *serialBus {
	return &serialBus{port: port, baud: baud, armed: make(map[byte]*time.Timer)}
}

// disarm cancels the pending safety stop for addr.
func (b *serialBus) disarm(addr byte) {
	b.armMu.Lock()
	defer b.armMu.Unlock()
	if t := b.armed[addr]; t != nil {
		t.Stop()
		delete(b.armed, addr)
	}
}

// disarmAll cancels every pending safety stop on a line being closed.
func (b *serialBus) disarmAll() {
	b.armMu.Lock()
	defer b.armMu.Unlock()
	for addr, t := range b.armed {
		t.Stop()
		delete(b.armed, addr)
	}
}

// PelcoConnector drives Pelco-D heads over RS-485. Pelco-D receivers never
// stop by themselves, so the device arms a local timer for the safety
// timeout of each move.
type PelcoConnector struct {
	open  SerialOpener
	after func(time.Duration, func()) *time.Timer

	mu    sync.Mutex
	buses map[string]*serialBus
}

// NewPelcoConnector creates a connector. A nil opener uses go.bug.st/serial.
func NewPelcoConnector(open SerialOpener) *PelcoConnector {
	if open == nil {
		open = openSerial
	}
	return &PelcoConnector{open: open, after: time.AfterFunc, buses: make(map[string]*serialBus)}
}

// Connect opens the serial line, or reuses it when another site shares it.
func (p *PelcoConnector) Connect(ctx context.Context, ep Endpoint) (Device, error) {
	if ep.Serial == nil {
		return nil, fmt.Errorf("%w: %s is not a serial endpoint", ErrConnection, ep)
	}
	line := *ep.Serial

	p.mu.Lock()
	defer p.mu.Unlock()

	bus, ok := p.buses[line.Device]
	if ok && bus.baud != line.BaudRate {
		return nil, fmt.Errorf("%w: %s already open at %d baud", ErrConnection, line.Device, bus.baud)
	}
	if !ok {
		mode := &serial.Mode{
			BaudRate: line.BaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := p.open(line.Device, mode)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", ErrConnection, line.Device, err)
		}
		bus = newSerialBus(port, line.BaudRate)
		p.buses[line.Device] = bus
		logf("opened %s at %d baud", line.Device, line.BaudRate)
	}
	return &pelcoDevice{conn: p, device: line.Device, bus: bus, addr: byte(line.Address)}, nil
}

// drop closes a failed line so the next Connect reopens it.
func (p *PelcoConnector) drop(device string, bus *serialBus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buses[device] == bus {
		delete(p.buses, device)
		bus.disarmAll()
		bus.port.Close()
	}
}

type pelcoDevice struct {
	conn   *PelcoConnector
	device string
	bus    *serialBus
	addr   byte
}

func (d *pelcoDevice) write(frame []byte) error {
	d.bus.mu.Lock()
	_, err := d.bus.port.Write(frame)
	d.bus.mu.Unlock()
	if err != nil {
		d.conn.drop(d.device, d.bus)
		return fmt.Errorf("%w: write %s: %w", ErrConnection, d.device, err)
	}
	return nil
}

func (d *pelcoDevice) ContinuousMove(ctx context.Context, v Velocity, timeout time.Duration) error {
	d.bus.disarm(d.addr)
	if err := d.write(pelcoMove(d.addr, v)); err != nil {
		return err
	}
	if timeout <= 0 {
		return nil
	}

	d.bus.armMu.Lock()
	defer d.bus.armMu.Unlock()
	var t *time.Timer
	t = d.conn.after(timeout, func() {
		// a timer that fired just as it was replaced no longer owns the slot
		d.bus.armMu.Lock()
		current := d.bus.armed[d.addr] == t
		if current {
			delete(d.bus.armed, d.addr)
		}
		d.bus.armMu.Unlock()
		if !current {
			return
		}
		if err := d.write(pelcoFrame(d.addr, 0, 0, 0, 0)); err != nil {
			logf("%s: safety stop failed: %v", d.device, err)
		}
	})
	d.bus.armed[d.addr] = t
	return nil
}

func (d *pelcoDevice) Stop(ctx context.Context) error {
	d.bus.disarm(d.addr)
	return d.write(pelcoFrame(d.addr, 0, 0, 0, 0))
}

// SchemeConnector picks the serial connector for Pelco endpoints and the
// network connector for everything else.
type SchemeConnector struct {
	Network Connector
	Serial  Connector
}

func (s SchemeConnector) Connect(ctx context.Context, ep Endpoint) (Device, error) {
	if ep.Serial != nil {
		if s.Serial == nil {
			return nil, fmt.Errorf("%w: serial control is not enabled", ErrConnection)
		}
		return s.Serial.Connect(ctx, ep)
	}
	return s.Network.Connect(ctx, ep)
}
