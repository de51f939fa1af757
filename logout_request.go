package cas

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrMalformedLogoutMessage reports a logout payload with no recognizable
// session index.
var ErrMalformedLogoutMessage = errors.New("cas: logout request: no session index in message")

// LogoutRequest is the decoded single logout notice sent by the CAS server.
// SessionIndex carries the service ticket originally issued for the session
// being terminated.
type LogoutRequest struct {
	SessionIndex string
	Raw          []byte
}

// xmlLogoutRequest mirrors the SAML LogoutRequest envelope. Only the session
// index is of interest; unknown elements and attributes are ignored so newer
// servers cannot break the parser.
type xmlLogoutRequest struct {
	XMLName      xml.Name
	SessionIndex string `xml:"SessionIndex"`
}

// GenerateBackChannelLogoutMessage produces the logout envelope for the
// given ticket as sent in a server-to-server POST body.
func GenerateBackChannelLogoutMessage(ticket string) string {
	return fmt.Sprintf(
		`<samlp:LogoutRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="LR-%s" Version="2.0" IssueInstant="%s">`+
			`<saml:NameID xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion">@NOT_USED@</saml:NameID>`+
			`<samlp:SessionIndex>%s</samlp:SessionIndex></samlp:LogoutRequest>`,
		uuid.NewString(), time.Now().UTC().Format(time.RFC3339), ticket)
}

// GenerateFrontChannelLogoutMessage produces the logout envelope for the
// given ticket as carried on a browser redirect: the XML is DEFLATE
// compressed and base64 encoded. URL encoding is left to the transport.
func GenerateFrontChannelLogoutMessage(ticket string) (string, error) {
	message := GenerateBackChannelLogoutMessage(ticket)

	var compressed bytes.Buffer
	w, err := flate.NewWriter(&compressed, flate.BestCompression)
	if err != nil {
		return "", errors.Wrap(err, "cas: logout request: deflate")
	}

	if _, err := w.Write([]byte(message)); err != nil {
		w.Close()
		return "", errors.Wrap(err, "cas: logout request: deflate")
	}

	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, "cas: logout request: deflate")
	}

	return base64.StdEncoding.EncodeToString(compressed.Bytes()), nil
}

// parseLogoutRequest decodes a logout payload from either channel. Plain XML
// is parsed directly; anything else is treated as base64 encoded DEFLATE
// compressed XML, the front-channel form.
func parseLogoutRequest(message []byte) (*LogoutRequest, error) {
	raw := message

	if !strings.HasPrefix(strings.TrimSpace(string(message)), "<") {
		inflated, err := inflateLogoutMessage(string(message))
		if err != nil {
			return nil, err
		}

		raw = inflated
	}

	var x xmlLogoutRequest
	if err := xml.Unmarshal(raw, &x); err != nil {
		return nil, errors.Wrap(ErrMalformedLogoutMessage, err.Error())
	}

	if x.SessionIndex == "" {
		return nil, ErrMalformedLogoutMessage
	}

	return &LogoutRequest{
		SessionIndex: x.SessionIndex,
		Raw:          raw,
	}, nil
}

func inflateLogoutMessage(encoded string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedLogoutMessage, err.Error())
	}

	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()

	inflated, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedLogoutMessage, err.Error())
	}

	return inflated, nil
}
