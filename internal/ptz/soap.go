package ptz

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/virtual.ptz/internal/httputil"
	"github.com/banshee-data/virtual.ptz/internal/timeutil"
)

const (
	nsSOAP   = "http://www.w3.org/2003/05/soap-envelope"
	nsDevice = "http://www.onvif.org/ver10/device/wsdl"
	nsMedia  = "http://www.onvif.org/ver10/media/wsdl"
	nsPTZ    = "http://www.onvif.org/ver20/ptz/wsdl"
	nsSchema = "http://www.onvif.org/ver10/schema"
	nsWSSE   = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	nsWSU    = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"

	passwordDigestType = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordDigest"
	base64EncodingType = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary"

	soapContentType = "application/soap+xml; charset=utf-8"

	maxResponseBytes = 1 << 20
)

type envelope struct {
	XMLName xml.Name `xml:"s:Envelope"`
	S       string   `xml:"xmlns:s,attr"`
	TDS     string   `xml:"xmlns:tds,attr"`
	TRT     string   `xml:"xmlns:trt,attr"`
	TPTZ    string   `xml:"xmlns:tptz,attr"`
	TT      string   `xml:"xmlns:tt,attr"`
	Header  *header  `xml:"s:Header,omitempty"`
	Body    body     `xml:"s:Body"`
}

type header struct {
	Security security `xml:"wsse:Security"`
}

type security struct {
	MustUnderstand string        `xml:"s:mustUnderstand,attr"`
	WSSE           string        `xml:"xmlns:wsse,attr"`
	WSU            string        `xml:"xmlns:wsu,attr"`
	Token          usernameToken `xml:"wsse:UsernameToken"`
}

type usernameToken struct {
	Username string   `xml:"wsse:Username"`
	Password password `xml:"wsse:Password"`
	Nonce    nonce    `xml:"wsse:Nonce"`
	Created  string   `xml:"wsu:Created"`
}

type password struct {
	Type  string `xml:"Type,attr"`
	Value string `xml:",chardata"`
}

type nonce struct {
	EncodingType string `xml:"EncodingType,attr"`
	Value        string `xml:",chardata"`
}

type body struct {
	Content interface{}
}

// responseEnvelope matches on local names so any prefix binding works.
type responseEnvelope struct {
	Body struct {
		Fault   *soapFault `xml:"Fault"`
		Content []byte     `xml:",innerxml"`
	} `xml:"Body"`
}

type soapFault struct {
	Code struct {
		Value   string `xml:"Value"`
		Subcode struct {
			Value   string `xml:"Value"`
			Subcode struct {
				Value string `xml:"Value"`
			} `xml:"Subcode"`
		} `xml:"Subcode"`
	} `xml:"Code"`
	Reason struct {
		Text string `xml:"Text"`
	} `xml:"Reason"`
	// SOAP 1.1 fields
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

func (f *soapFault) codes() string {
	return strings.Join([]string{f.Code.Value, f.Code.Subcode.Value, f.Code.Subcode.Subcode.Value, f.FaultCode}, " ")
}

func (f *soapFault) reason() string {
	if f.Reason.Text != "" {
		return strings.TrimSpace(f.Reason.Text)
	}
	if f.FaultString != "" {
		return strings.TrimSpace(f.FaultString)
	}
	return strings.TrimSpace(f.codes())
}

// isAuth reports whether the fault is a credential rejection.
func (f *soapFault) isAuth() bool {
	c := strings.ToLower(f.codes())
	return strings.Contains(c, "notauthorized") || strings.Contains(c, "failedauthentication")
}

// soapClient posts SOAP 1.2 requests signed with a WS-Security
// UsernameToken digest.
type soapClient struct {
	http    httputil.HTTPClient
	clock   timeutil.Clock
	user    string
	pass    string
	timeout time.Duration
	nonce   func() ([]byte, error)
}

func randomNonce() ([]byte, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// passwordDigest is Base64(SHA1(nonce + created + password)).
func passwordDigest(nonce []byte, created, pass string) string {
	h := sha1.New()
	h.Write(nonce)
	h.Write([]byte(created))
	h.Write([]byte(pass))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (c *soapClient) envelope(content interface{}) (*envelope, error) {
	env := &envelope{
		S: nsSOAP, TDS: nsDevice, TRT: nsMedia, TPTZ: nsPTZ, TT: nsSchema,
		Body: body{Content: content},
	}
	if c.user == "" {
		return env, nil
	}

	n, err := c.nonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	created := c.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	env.Header = &header{Security: security{
		MustUnderstand: "1",
		WSSE:           nsWSSE,
		WSU:            nsWSU,
		Token: usernameToken{
			Username: c.user,
			Password: password{Type: passwordDigestType, Value: passwordDigest(n, created, c.pass)},
			Nonce:    nonce{EncodingType: base64EncodingType, Value: base64.StdEncoding.EncodeToString(n)},
			Created:  created,
		},
	}}
	return env, nil
}

// call posts request to addr and decodes the body content into response,
// which may be nil. Transport failures and rejected credentials wrap
// ErrConnection; faults and undecodable replies wrap ErrProtocol.
func (c *soapClient) call(ctx context.Context, addr string, request, response interface{}) error {
	env, err := c.envelope(request)
	if err != nil {
		return err
	}
	payload, err := xml.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr, bytes.NewReader(append([]byte(xml.Header), payload...)))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	req.Header.Set("Content-Type", soapContentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	raw, err := httputil.ReadBody(resp, maxResponseBytes)
	if errors.Is(err, httputil.ErrBodyTooLarge) {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s rejected credentials (HTTP %d)", ErrConnection, addr, resp.StatusCode)
	}

	var out responseEnvelope
	if err := xml.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("%w: malformed response (HTTP %d): %w", ErrProtocol, resp.StatusCode, err)
	}
	if f := out.Body.Fault; f != nil {
		if f.isAuth() {
			return fmt.Errorf("%w: %s", ErrConnection, f.reason())
		}
		return fmt.Errorf("%w: fault: %s", ErrProtocol, f.reason())
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected HTTP status %d", ErrProtocol, resp.StatusCode)
	}

	if response == nil {
		return nil
	}
	if len(bytes.TrimSpace(out.Body.Content)) == 0 {
		return fmt.Errorf("%w: empty response body", ErrProtocol)
	}
	if err := xml.Unmarshal(out.Body.Content, response); err != nil {
		return fmt.Errorf("%w: malformed response: %w", ErrProtocol, err)
	}
	return nil
}

var errNoPTZ = errors.New("camera does not expose a PTZ service")
