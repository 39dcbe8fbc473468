package ptz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/virtual.ptz/internal/monitoring"
	"github.com/banshee-data/virtual.ptz/internal/timeutil"
)

// DefaultSafetyTimeout bounds every continuous move on the device itself.
const DefaultSafetyTimeout = 30 * time.Second

var logf = monitoring.Prefixed("ptz")

// Device is an open control session with one camera.
type Device interface {
	// ContinuousMove starts moving at v. The camera stops on its own after
	// timeout unless another command arrives first.
	ContinuousMove(ctx context.Context, v Velocity, timeout time.Duration) error
	Stop(ctx context.Context) error
}

// Connector opens control sessions.
type Connector interface {
	Connect(ctx context.Context, ep Endpoint) (Device, error)
}

// CameraLookup resolves a site to its motor control URL: an ONVIF camera
// stream URL or a pelco: serial address.
type CameraLookup interface {
	ControlURL(siteID int) (string, error)
}

// Config tunes the controller.
type Config struct {
	SafetyTimeout time.Duration
	ControlPort   int
}

// DefaultConfig returns the stock controller settings.
func DefaultConfig() Config {
	return Config{SafetyTimeout: DefaultSafetyTimeout, ControlPort: DefaultControlPort}
}

type session struct {
	device      Device
	endpoint    Endpoint
	connectedAt time.Time
	lastCommand Direction
	lastAt      time.Time
}

// SessionInfo describes a cached session.
type SessionInfo struct {
	SiteID      int       `json:"site_id"`
	Endpoint    string    `json:"endpoint"`
	ConnectedAt time.Time `json:"connected_at"`
	LastCommand Direction `json:"last_command,omitempty"`
	LastAt      time.Time `json:"last_at,omitempty"`
}

// Controller issues motor commands and owns the per-site session cache.
// Commands for the same site are serialised; different sites proceed in
// parallel.
type Controller struct {
	lookup    CameraLookup
	connector Connector
	cfg       Config
	clock     timeutil.Clock

	mu       sync.Mutex
	locks    map[int]*sync.Mutex
	sessions map[int]*session
}

// NewController creates a Controller. A nil clock uses the wall clock.
func NewController(lookup CameraLookup, connector Connector, cfg Config, clock timeutil.Clock) *Controller {
	if cfg.SafetyTimeout <= 0 {
		cfg.SafetyTimeout = DefaultSafetyTimeout
	}
	if cfg.ControlPort <= 0 {
		cfg.ControlPort = DefaultControlPort
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Controller{
		lookup:    lookup,
		connector: connector,
		cfg:       cfg,
		clock:     clock,
		locks:     make(map[int]*sync.Mutex),
		sessions:  make(map[int]*session),
	}
}

// Move sends one motor command to the camera of siteID. Stop issues a single
// stop request and ignores speed. Any failure drops the cached session; the
// command is not retried.
func (c *Controller) Move(ctx context.Context, siteID int, dir Direction, speed float64) error {
	var v Velocity
	if dir != Stop {
		var err error
		if v, err = dir.Velocity(speed); err != nil {
			return err
		}
	}

	lock := c.siteLock(siteID)
	lock.Lock()
	defer lock.Unlock()

	s, err := c.session(ctx, siteID)
	if err != nil {
		return err
	}

	if dir == Stop {
		err = s.device.Stop(ctx)
	} else {
		err = s.device.ContinuousMove(ctx, v, c.cfg.SafetyTimeout)
	}
	if err != nil {
		c.invalidate(siteID)
		logf("site %d: %s failed, session dropped: %v", siteID, dir, err)
		return fmt.Errorf("site %d %s: %w", siteID, dir, err)
	}

	c.mu.Lock()
	s.lastCommand = dir
	s.lastAt = c.clock.Now()
	c.mu.Unlock()
	return nil
}

// session returns the cached session for siteID, connecting when there is
// none. The caller holds the site lock.
func (c *Controller) session(ctx context.Context, siteID int) (*session, error) {
	c.mu.Lock()
	s, ok := c.sessions[siteID]
	c.mu.Unlock()
	if ok {
		return s, nil
	}

	raw, err := c.lookup.ControlURL(siteID)
	if err != nil {
		return nil, fmt.Errorf("site %d: %w", siteID, err)
	}
	ep, err := ParseCameraURL(raw, c.cfg.ControlPort)
	if err != nil {
		return nil, fmt.Errorf("site %d: %w", siteID, err)
	}

	logf("site %d: connecting to %s", siteID, ep)
	dev, err := c.connector.Connect(ctx, ep)
	if err != nil {
		if !errors.Is(err, ErrConnection) && !errors.Is(err, ErrProtocol) {
			err = fmt.Errorf("%w: %w", ErrConnection, err)
		}
		return nil, fmt.Errorf("site %d: %w", siteID, err)
	}

	s = &session{device: dev, endpoint: ep, connectedAt: c.clock.Now()}
	c.mu.Lock()
	c.sessions[siteID] = s
	c.mu.Unlock()
	return s, nil
}

func (c *Controller) siteLock(siteID int) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[siteID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[siteID] = l
	}
	return l
}

func (c *Controller) invalidate(siteID int) {
	c.mu.Lock()
	delete(c.sessions, siteID)
	c.mu.Unlock()
}

// Invalidate drops the cached session of siteID, for example after its
// camera URL changed. It waits for an in-flight command on that site.
func (c *Controller) Invalidate(siteID int) {
	lock := c.siteLock(siteID)
	lock.Lock()
	defer lock.Unlock()
	c.invalidate(siteID)
}

// Forget drops the session and the command lock of a site that no longer
// exists. A command still waiting on the old lock fails at lookup.
func (c *Controller) Forget(siteID int) {
	lock := c.siteLock(siteID)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	delete(c.sessions, siteID)
	delete(c.locks, siteID)
	c.mu.Unlock()
}

// Sessions lists the cached sessions ordered by site.
func (c *Controller) Sessions() []SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]SessionInfo, 0, len(c.sessions))
	for id, s := range c.sessions {
		out = append(out, SessionInfo{
			SiteID:      id,
			Endpoint:    s.endpoint.String(),
			ConnectedAt: s.connectedAt,
			LastCommand: s.lastCommand,
			LastAt:      s.lastAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out
}
