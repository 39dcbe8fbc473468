package ptz

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/banshee-data/virtual.ptz/internal/httputil"
	"github.com/banshee-data/virtual.ptz/internal/timeutil"
)

type getCapabilities struct {
	XMLName  xml.Name `xml:"tds:GetCapabilities"`
	Category string   `xml:"tds:Category"`
}

type getCapabilitiesResponse struct {
	Capabilities struct {
		Media struct {
			XAddr string `xml:"XAddr"`
		} `xml:"Media"`
		PTZ struct {
			XAddr string `xml:"XAddr"`
		} `xml:"PTZ"`
	} `xml:"Capabilities"`
}

type getProfiles struct {
	XMLName xml.Name `xml:"trt:GetProfiles"`
}

type getProfilesResponse struct {
	Profiles []struct {
		Token            string    `xml:"token,attr"`
		Name             string    `xml:"Name"`
		PTZConfiguration *struct{} `xml:"PTZConfiguration"`
	} `xml:"Profiles"`
}

type vector2D struct {
	X float64 `xml:"x,attr"`
	Y float64 `xml:"y,attr"`
}

type vector1D struct {
	X float64 `xml:"x,attr"`
}

type continuousMove struct {
	XMLName      xml.Name `xml:"tptz:ContinuousMove"`
	ProfileToken string   `xml:"tptz:ProfileToken"`
	Velocity     struct {
		PanTilt vector2D `xml:"tt:PanTilt"`
		Zoom    vector1D `xml:"tt:Zoom"`
	} `xml:"tptz:Velocity"`
	Timeout string `xml:"tptz:Timeout"`
}

type stop struct {
	XMLName      xml.Name `xml:"tptz:Stop"`
	ProfileToken string   `xml:"tptz:ProfileToken"`
	PanTilt      bool     `xml:"tptz:PanTilt"`
	Zoom         bool     `xml:"tptz:Zoom"`
}

// ONVIFConnector opens ONVIF sessions: it discovers the PTZ and media
// services and picks the first profile with a PTZ configuration.
type ONVIFConnector struct {
	client  httputil.HTTPClient
	clock   timeutil.Clock
	timeout time.Duration // per request
	nonce   func() ([]byte, error)
}

// NewONVIFConnector creates a connector. A nil clock uses the wall clock; a
// zero timeout leaves requests bounded only by the caller's context.
func NewONVIFConnector(client httputil.HTTPClient, clock timeutil.Clock, timeout time.Duration) *ONVIFConnector {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ONVIFConnector{client: client, clock: clock, timeout: timeout, nonce: randomNonce}
}

// Connect performs the capability and profile handshake.
func (o *ONVIFConnector) Connect(ctx context.Context, ep Endpoint) (Device, error) {
	c := &soapClient{
		http:    o.client,
		clock:   o.clock,
		user:    ep.User,
		pass:    ep.Pass,
		timeout: o.timeout,
		nonce:   o.nonce,
	}

	deviceAddr := ep.DeviceServiceURL()
	var caps getCapabilitiesResponse
	if err := c.call(ctx, deviceAddr, &getCapabilities{Category: "All"}, &caps); err != nil {
		return nil, fmt.Errorf("GetCapabilities: %w", err)
	}
	ptzAddr := caps.Capabilities.PTZ.XAddr
	if ptzAddr == "" {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, errNoPTZ)
	}
	mediaAddr := caps.Capabilities.Media.XAddr
	if mediaAddr == "" {
		mediaAddr = deviceAddr
	}

	var profiles getProfilesResponse
	if err := c.call(ctx, mediaAddr, &getProfiles{}, &profiles); err != nil {
		return nil, fmt.Errorf("GetProfiles: %w", err)
	}
	token := ""
	for _, p := range profiles.Profiles {
		if p.PTZConfiguration != nil {
			token = p.Token
			break
		}
	}
	if token == "" && len(profiles.Profiles) > 0 {
		token = profiles.Profiles[0].Token
	}
	if token == "" {
		return nil, fmt.Errorf("%w: camera reported no media profiles", ErrProtocol)
	}

	return &onvifDevice{soap: c, ptzAddr: ptzAddr, profile: token}, nil
}

type onvifDevice struct {
	soap    *soapClient
	ptzAddr string
	profile string
}

func (d *onvifDevice) ContinuousMove(ctx context.Context, v Velocity, timeout time.Duration) error {
	req := &continuousMove{ProfileToken: d.profile, Timeout: isoDuration(timeout)}
	req.Velocity.PanTilt = vector2D{X: v.X, Y: v.Y}
	req.Velocity.Zoom = vector1D{X: v.Z}
	if err := d.soap.call(ctx, d.ptzAddr, req, nil); err != nil {
		return fmt.Errorf("ContinuousMove: %w", err)
	}
	return nil
}

func (d *onvifDevice) Stop(ctx context.Context) error {
	if err := d.soap.call(ctx, d.ptzAddr, &stop{ProfileToken: d.profile, PanTilt: true, Zoom: true}, nil); err != nil {
		return fmt.Errorf("Stop: %w", err)
	}
	return nil
}

// isoDuration formats d as an xs:duration in seconds, e.g. PT30S.
func isoDuration(d time.Duration) string {
	return "PT" + strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "S"
}
