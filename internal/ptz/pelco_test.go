package ptz

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

type fakePort struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	err    error
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	return p.buf.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) frames() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out [][]byte
	b := p.buf.Bytes()
	for len(b) >= 7 {
		out = append(out, append([]byte(nil), b[:7]...))
		b = b[7:]
	}
	return out
}

type fakeOpener struct {
	ports map[string]*fakePort
	modes []*serial.Mode
	err   error
}

func (o *fakeOpener) open(device string, mode *serial.Mode) (io.WriteCloser, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.modes = append(o.modes, mode)
	p := &fakePort{}
	if o.ports == nil {
		o.ports = map[string]*fakePort{}
	}
	o.ports[device] = p
	return p, nil
}

// newTestPelco captures safety-stop callbacks instead of arming real timers.
func newTestPelco(o *fakeOpener) (*PelcoConnector, *[]func()) {
	var pending []func()
	c := NewPelcoConnector(o.open)
	c.after = func(d time.Duration, f func()) *time.Timer {
		pending = append(pending, f)
		return time.NewTimer(time.Hour)
	}
	return c, &pending
}

func serialEP(device string, addr int) Endpoint {
	return Endpoint{Serial: &SerialLine{Device: device, Address: addr, BaudRate: DefaultPelcoBaud}}
}

func TestPelcoFrame(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte{0xFF, 0x01, 0x00, 0x04, 0x20, 0x00, 0x25}, pelcoMove(1, Velocity{X: -0.5}))
	assert.Equal(t, []byte{0xFF, 0x02, 0x00, 0x08, 0x00, 0x3F, 0x49}, pelcoMove(2, Velocity{Y: 1}))
	assert.Equal(t, []byte{0xFF, 0x01, 0x00, 0x20, 0x00, 0x00, 0x21}, pelcoMove(1, Velocity{Z: 0.3}))
	assert.Equal(t, []byte{0xFF, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01}, pelcoFrame(1, 0, 0, 0, 0))

	// checksum wraps modulo 256
	f := pelcoFrame(0xF0, 0, pelcoRight|pelcoDown, 0x3F, 0x3F)
	assert.Equal(t, byte((0xF0+0x12+0x3F+0x3F)%256), f[6])
}

func TestPelcoSpeed(t *testing.T) {
	t.Parallel()

	assert.Equal(t, byte(1), pelcoSpeed(0.001))
	assert.Equal(t, byte(32), pelcoSpeed(-0.5))
	assert.Equal(t, byte(0x3F), pelcoSpeed(1))
}

func TestPelcoDevice_MoveArmsSafetyStop(t *testing.T) {
	opener := &fakeOpener{}
	c, pending := newTestPelco(opener)

	dev, err := c.Connect(context.Background(), serialEP("/dev/ttyUSB0", 1))
	require.NoError(t, err)
	require.Len(t, opener.modes, 1)
	assert.Equal(t, DefaultPelcoBaud, opener.modes[0].BaudRate)

	require.NoError(t, dev.ContinuousMove(context.Background(), Velocity{X: 0.5}, 30*time.Second))
	require.Len(t, *pending, 1)

	// fire the safety stop
	(*pending)[0]()
	frames := opener.ports["/dev/ttyUSB0"].frames()
	require.Len(t, frames, 2)
	assert.Equal(t, byte(pelcoRight), frames[0][3])
	assert.Equal(t, pelcoFrame(1, 0, 0, 0, 0), frames[1])
}

func TestPelcoDevice_ReplacedSessionCannotStopNewMove(t *testing.T) {
	opener := &fakeOpener{}
	c, pending := newTestPelco(opener)
	ctx := context.Background()

	old, err := c.Connect(ctx, serialEP("/dev/ttyUSB0", 1))
	require.NoError(t, err)
	require.NoError(t, old.ContinuousMove(ctx, Velocity{X: -0.5}, 30*time.Second))

	// session dropped and reopened for the same head
	fresh, err := c.Connect(ctx, serialEP("/dev/ttyUSB0", 1))
	require.NoError(t, err)
	require.NoError(t, fresh.ContinuousMove(ctx, Velocity{X: 0.5}, 30*time.Second))
	require.Len(t, *pending, 2)

	port := opener.ports["/dev/ttyUSB0"]
	(*pending)[0]()
	assert.Len(t, port.frames(), 2, "stale safety stop must not reach the line")

	(*pending)[1]()
	frames := port.frames()
	require.Len(t, frames, 3)
	assert.Equal(t, pelcoFrame(1, 0, 0, 0, 0), frames[2])

	// already fired
	(*pending)[1]()
	assert.Len(t, port.frames(), 3)
}

func TestPelcoDevice_OtherAddressKeepsItsSafetyStop(t *testing.T) {
	opener := &fakeOpener{}
	c, pending := newTestPelco(opener)
	ctx := context.Background()

	a, err := c.Connect(ctx, serialEP("/dev/ttyUSB0", 1))
	require.NoError(t, err)
	b, err := c.Connect(ctx, serialEP("/dev/ttyUSB0", 2))
	require.NoError(t, err)
	require.NoError(t, a.ContinuousMove(ctx, Velocity{Y: 1}, 30*time.Second))
	require.NoError(t, b.Stop(ctx))

	(*pending)[0]()
	frames := opener.ports["/dev/ttyUSB0"].frames()
	require.Len(t, frames, 3)
	assert.Equal(t, pelcoFrame(1, 0, 0, 0, 0), frames[2])
}

func TestPelcoDevice_Stop(t *testing.T) {
	opener := &fakeOpener{}
	c, _ := newTestPelco(opener)

	dev, err := c.Connect(context.Background(), serialEP("/dev/ttyUSB0", 3))
	require.NoError(t, err)
	require.NoError(t, dev.Stop(context.Background()))

	assert.Equal(t, [][]byte{pelcoFrame(3, 0, 0, 0, 0)}, opener.ports["/dev/ttyUSB0"].frames())
}

func TestPelcoConnector_SharesBus(t *testing.T) {
	opener := &fakeOpener{}
	c, _ := newTestPelco(opener)

	a, err := c.Connect(context.Background(), serialEP("/dev/ttyUSB0", 1))
	require.NoError(t, err)
	b, err := c.Connect(context.Background(), serialEP("/dev/ttyUSB0", 2))
	require.NoError(t, err)
	assert.Len(t, opener.modes, 1, "one open per serial device")

	require.NoError(t, a.Stop(context.Background()))
	require.NoError(t, b.Stop(context.Background()))
	frames := opener.ports["/dev/ttyUSB0"].frames()
	require.Len(t, frames, 2)
	assert.Equal(t, byte(1), frames[0][1])
	assert.Equal(t, byte(2), frames[1][1])

	other := serialEP("/dev/ttyUSB0", 4)
	other.Serial.BaudRate = 9600
	_, err = c.Connect(context.Background(), other)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestPelcoConnector_Errors(t *testing.T) {
	opener := &fakeOpener{err: errors.New("permission denied")}
	c, _ := newTestPelco(opener)

	_, err := c.Connect(context.Background(), serialEP("/dev/ttyS0", 1))
	assert.ErrorIs(t, err, ErrConnection)

	_, err = c.Connect(context.Background(), Endpoint{Host: "10.0.0.1"})
	assert.ErrorIs(t, err, ErrConnection)
}

func TestPelcoDevice_WriteFailureReopens(t *testing.T) {
	opener := &fakeOpener{}
	c, _ := newTestPelco(opener)

	dev, err := c.Connect(context.Background(), serialEP("/dev/ttyUSB0", 1))
	require.NoError(t, err)
	port := opener.ports["/dev/ttyUSB0"]
	port.err = errors.New("device unplugged")

	assert.ErrorIs(t, dev.Stop(context.Background()), ErrConnection)
	assert.True(t, port.closed)

	_, err = c.Connect(context.Background(), serialEP("/dev/ttyUSB0", 1))
	require.NoError(t, err)
	assert.Len(t, opener.modes, 2)
}

type recordingConnector struct{ eps []Endpoint }

func (r *recordingConnector) Connect(ctx context.Context, ep Endpoint) (Device, error) {
	r.eps = append(r.eps, ep)
	return &fakeDevice{}, nil
}

func TestSchemeConnector(t *testing.T) {
	network, serialConn := &recordingConnector{}, &recordingConnector{}
	sc := SchemeConnector{Network: network, Serial: serialConn}

	_, err := sc.Connect(context.Background(), Endpoint{Host: "10.0.0.1"})
	require.NoError(t, err)
	_, err = sc.Connect(context.Background(), serialEP("/dev/ttyUSB0", 1))
	require.NoError(t, err)
	assert.Len(t, network.eps, 1)
	assert.Len(t, serialConn.eps, 1)

	_, err = SchemeConnector{Network: network}.Connect(context.Background(), serialEP("/dev/ttyUSB0", 1))
	assert.ErrorIs(t, err, ErrConnection)
}
