package cas

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// TicketValidator validates a service or proxy ticket with the CAS server
// and returns the authenticated user information. Validation failures are
// terminal; a consumed single-use ticket cannot be retried.
type TicketValidator interface {
	Validate(ctx context.Context, ticket, service string) (*AuthenticationResponse, error)
}

// ProtocolVersion selects the CAS validation endpoint family.
type ProtocolVersion int

// Supported CAS protocol versions
const (
	CAS1 ProtocolVersion = iota + 1
	CAS2
	CAS3
)

// ServiceTicketValidator implements TicketValidator against the HTTP
// validation endpoints of a CAS server. The protocol version and proxy
// support are plain configuration, not separate validator types.
type ServiceTicketValidator struct {
	// URL is the base URL of the CAS server.
	URL *url.URL

	// Client is used for validation requests. http.DefaultClient if nil.
	Client *http.Client

	// Protocol selects validate, serviceValidate or p3/serviceValidate.
	Protocol ProtocolVersion

	// AcceptProxy switches to the proxyValidate endpoints so that proxy
	// tickets are accepted as well as service tickets.
	AcceptProxy bool

	// AllowedProxyChains, when non-empty, restricts which proxying
	// services may appear in a validated proxy chain.
	AllowedProxyChains []string

	// Renew requires the presented ticket to come from a fresh login.
	Renew bool

	// ProxyCallbackURL is sent as pgtUrl so the server delivers a proxy
	// granting ticket to the proxy receptor.
	ProxyCallbackURL string
}

// ValidateURL constructs the validation URL for the ticket and service.
func (v *ServiceTicketValidator) ValidateURL(ticket, service string) (string, error) {
	u, err := v.URL.Parse(path.Join(v.URL.Path, v.endpoint()))
	if err != nil {
		return "", errors.Wrap(err, "cas: validator: bad validation url")
	}

	q := u.Query()
	q.Add("service", service)
	q.Add("ticket", ticket)

	if v.Renew {
		q.Add("renew", "true")
	}

	if v.ProxyCallbackURL != "" {
		q.Add("pgtUrl", v.ProxyCallbackURL)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (v *ServiceTicketValidator) endpoint() string {
	switch v.Protocol {
	case CAS1:
		return "validate"
	case CAS3:
		if v.AcceptProxy {
			return "p3/proxyValidate"
		}
		return "p3/serviceValidate"
	default:
		if v.AcceptProxy {
			return "proxyValidate"
		}
		return "serviceValidate"
	}
}

// Validate performs ticket validation with the CAS server. If the server
// does not serve the CAS 2 endpoint, validation falls back to the CAS 1
// plain-text protocol.
func (v *ServiceTicketValidator) Validate(ctx context.Context, ticket, service string) (*AuthenticationResponse, error) {
	if v.Protocol == CAS1 {
		return v.validateCas1(ctx, ticket, service)
	}

	u, err := v.ValidateURL(ticket, service)
	if err != nil {
		return nil, err
	}

	if glog.V(2) {
		glog.Infof("cas: validating ticket %v with %v", ticket, u)
	}

	status, body, err := v.get(ctx, u)
	if err != nil {
		return nil, err
	}

	if status == http.StatusNotFound {
		return v.validateCas1(ctx, ticket, service)
	}

	if status != http.StatusOK {
		return nil, errors.Errorf("cas: validate ticket: %v", string(body))
	}

	if glog.V(2) {
		glog.Infof("cas: received authentication response\n%v", string(body))
	}

	success, err := ParseServiceResponse(body)
	if err != nil {
		return nil, err
	}

	if err := v.checkProxies(success); err != nil {
		return nil, err
	}

	return success, nil
}

// validateCas1 performs CAS protocol 1 ticket validation.
func (v *ServiceTicketValidator) validateCas1(ctx context.Context, ticket, service string) (*AuthenticationResponse, error) {
	u, err := v.URL.Parse(path.Join(v.URL.Path, "validate"))
	if err != nil {
		return nil, errors.Wrap(err, "cas: validator: bad validation url")
	}

	q := u.Query()
	q.Add("service", service)
	q.Add("ticket", ticket)
	if v.Renew {
		q.Add("renew", "true")
	}
	u.RawQuery = q.Encode()

	status, data, err := v.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	body := string(data)

	if status != http.StatusOK {
		return nil, errors.Errorf("cas: validate ticket: %v", body)
	}

	if glog.V(2) {
		glog.Infof("cas: received authentication response\n%v", body)
	}

	if !strings.HasPrefix(body, "yes\n") {
		return nil, &AuthenticationError{Code: INVALID_TICKET, Message: "ticket not recognized"}
	}

	user := strings.TrimSpace(strings.TrimPrefix(body, "yes\n"))

	return &AuthenticationResponse{
		User:       user,
		Attributes: make(UserAttributes),
	}, nil
}

func (v *ServiceTicketValidator) get(ctx context.Context, u string) (int, []byte, error) {
	r, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return 0, nil, errors.Wrap(err, "cas: validator: new request")
	}

	r = r.WithContext(ctx)
	r.Header.Add("User-Agent", "Golang CAS client github.com/cas-go/cas")

	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(r)
	if err != nil {
		return 0, nil, errors.Wrap(err, "cas: validator: validation request")
	}

	body, err := ioutil.ReadAll(resp.Body)
	resp.Body.Close()

	if err != nil {
		return 0, nil, errors.Wrap(err, "cas: validator: reading response")
	}

	if glog.V(2) {
		glog.Infof("cas: request %v %v returned %v", r.Method, r.URL, resp.Status)
	}

	return resp.StatusCode, body, nil
}

// checkProxies rejects a response whose proxy chain contains a service not
// present in AllowedProxyChains.
func (v *ServiceTicketValidator) checkProxies(r *AuthenticationResponse) error {
	if len(v.AllowedProxyChains) == 0 {
		return nil
	}

	allowed := make(map[string]bool, len(v.AllowedProxyChains))
	for _, p := range v.AllowedProxyChains {
		allowed[p] = true
	}

	for _, p := range r.Proxies {
		if !allowed[p] {
			return &AuthenticationError{
				Code:    UNAUTHORIZED_SERVICE_PROXY,
				Message: "proxy " + p + " is not in the allowed proxy chains",
			}
		}
	}

	return nil
}
