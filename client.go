package cas

import (
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

const sessionCookieName = "_cas_session"

// Default request parameter names, overridable through Options.
const (
	DefaultTicketParam     = "ticket"
	DefaultLogoutParam     = "logoutRequest"
	DefaultRelayStateParam = "RelayState"
)

// Options for client configuration. Values are expected to be fully
// resolved; the client performs no configuration loading of its own.
type Options struct {
	URL          *url.URL     // URL to the CAS service
	Store        TicketStore  // Custom TicketStore, if nil a MemoryStore will be used
	SessionStore SessionStore // Custom SessionStore, for CGI-type environments where server state disappears periodically
	Client       *http.Client // Custom http client to allow options for http connections
	Validator    TicketValidator // Custom ticket validator, if nil a CAS2 ServiceTicketValidator is used
	Domain       string       // cookie domain
	SendService  bool         // Determines whether the logout URL carries a service param
	RunOnLogin   RunOnLogin   // Provides functionality to run a function post-login

	// SessionMappings correlates tickets with local sessions for single
	// logout. If nil an in-memory store is used.
	SessionMappings SessionMappingStore

	// ProxyGrantingTicketStorage receives IOU/PGT pairs from the proxy
	// callback. If nil an in-memory storage is used.
	ProxyGrantingTicketStorage ProxyGrantingTicketStorage

	// ProxyGrantingTicketTTL bounds the lifetime of stored PGT entries.
	// Required when CleanUpInterval is set.
	ProxyGrantingTicketTTL time.Duration

	// CleanUpInterval is the time between background sweeps of expired PGT
	// entries. Zero disables the background reaper.
	CleanUpInterval time.Duration

	TicketParam     string // request parameter carrying the service ticket, DefaultTicketParam if empty
	LogoutParam     string // request parameter carrying the logout message, DefaultLogoutParam if empty
	RelayStateParam string // request parameter carrying the relay state, DefaultRelayStateParam if empty

	// FrontChannelLogoutMethod is the HTTP method front-channel logout
	// notices arrive with. GET if empty.
	FrontChannelLogoutMethod string

	// TokenBeforeLogout resolves requests carrying both a ticket and a
	// logout parameter in favor of the ticket. The protocol leaves this
	// ambiguous; by default the logout parameter wins.
	TokenBeforeLogout bool
}

// Client implements the main protocol
type Client struct {
	URL *url.URL

	tickets     TicketStore
	sessions    SessionStore
	mappings    SessionMappingStore
	pgtStorage  ProxyGrantingTicketStorage
	validator   TicketValidator
	client      *http.Client
	domain      string
	sendService bool
	runOnLogin  RunOnLogin
	reaper      *Reaper

	ticketParam       string
	logoutParam       string
	relayStateParam   string
	frontLogoutMethod string
	tokenBeforeLogout bool
}

// NewClient creates a Client with the provided Options.
func NewClient(options *Options) *Client {
	if glog.V(2) {
		glog.Infof("cas: new client with options %v", options)
	}

	var tickets TicketStore
	if options.Store != nil {
		tickets = options.Store
	} else {
		tickets = &MemoryStore{}
	}

	var sessions SessionStore
	if options.SessionStore != nil {
		sessions = options.SessionStore
	} else {
		sessions = NewSessionMemoryStore()
	}

	mappings := options.SessionMappings
	if mappings == nil {
		mappings = NewMemorySessionMappingStore()
	}

	pgtStorage := options.ProxyGrantingTicketStorage
	if pgtStorage == nil {
		pgtStorage = NewMemoryProxyGrantingTicketStorage()
	}

	client := options.Client
	if client == nil {
		client = &http.Client{}
	}

	validator := options.Validator
	if validator == nil {
		validator = &ServiceTicketValidator{
			URL:      options.URL,
			Client:   client,
			Protocol: CAS2,
		}
	}

	c := &Client{
		URL:               options.URL,
		tickets:           tickets,
		sessions:          sessions,
		mappings:          mappings,
		pgtStorage:        pgtStorage,
		validator:         validator,
		client:            client,
		domain:            options.Domain,
		sendService:       options.SendService,
		runOnLogin:        options.RunOnLogin,
		ticketParam:       stringOr(options.TicketParam, DefaultTicketParam),
		logoutParam:       stringOr(options.LogoutParam, DefaultLogoutParam),
		relayStateParam:   stringOr(options.RelayStateParam, DefaultRelayStateParam),
		frontLogoutMethod: stringOr(options.FrontChannelLogoutMethod, "GET"),
		tokenBeforeLogout: options.TokenBeforeLogout,
	}

	if options.CleanUpInterval > 0 {
		c.reaper = NewReaper(pgtStorage, options.ProxyGrantingTicketTTL, options.CleanUpInterval)
	}

	return c
}

func stringOr(v, fallback string) string {
	if v == "" {
		return fallback
	}

	return v
}

// Start launches the background reaper, if one was configured. A
// misconfigured reaper is reported immediately rather than on first use.
func (c *Client) Start() error {
	if c.reaper == nil {
		return nil
	}

	return c.reaper.Start()
}

// Stop cancels the background reaper. Safe to call without Start.
func (c *Client) Stop() {
	if c.reaper != nil {
		c.reaper.Stop()
	}
}

// Handle wraps a http.Handler to provide CAS authentication for the handler.
func (c *Client) Handle(h http.Handler) http.Handler {
	return &clientHandler{
		c: c,
		h: h,
	}
}

// HandleFunc wraps a function to provide CAS authentication for the handler function.
func (c *Client) HandleFunc(h func(http.ResponseWriter, *http.Request)) http.Handler {
	return c.Handle(http.HandlerFunc(h))
}

// requestURL determines an absolute URL from the http.Request.
func requestURL(r *http.Request, referer *url.URL) (*url.URL, error) {
	u := r.URL

	if referer != nil && referer.String() != "" {
		u = referer
	}

	u.Host = r.Host
	u.Scheme = "http"

	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		u.Scheme = scheme
	} else if r.TLS != nil {
		u.Scheme = "https"
	}

	return u, nil
}

// LoginURLForRequest determines the CAS login URL for the http.Request.
func (c *Client) LoginURLForRequest(r *http.Request, referer *url.URL) (string, error) {
	u, err := c.URL.Parse(path.Join(c.URL.Path, "login"))
	if err != nil {
		return "", err
	}

	service, err := requestURL(r, referer)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Add("service", sanitisedURLString(service))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// LogoutURLForRequest determines the CAS logout URL for the http.Request.
func (c *Client) LogoutURLForRequest(r *http.Request) (string, error) {
	u, err := c.URL.Parse(path.Join(c.URL.Path, "logout"))
	if err != nil {
		return "", err
	}

	if c.sendService {
		service, err := requestURL(r, nil)
		if err != nil {
			return "", err
		}

		q := u.Query()
		q.Add("service", sanitisedURLString(service))
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// RedirectToLogout replies to the request with a redirect URL to log out of CAS.
func (c *Client) RedirectToLogout(w http.ResponseWriter, r *http.Request) {
	u, err := c.LogoutURLForRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if glog.V(2) {
		glog.Infof("cas: logging out, redirecting client to %v with status %v",
			u, http.StatusFound)
	}

	c.ClearSession(w, r)
	http.Redirect(w, r, u, http.StatusFound)
}

// RedirectToLogin replies to the request with a redirect URL to authenticate with CAS.
func (c *Client) RedirectToLogin(w http.ResponseWriter, r *http.Request, referer *url.URL) {
	u, err := c.LoginURLForRequest(r, referer)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if glog.V(2) {
		glog.Infof("cas: redirecting client to %v with status %v", u, http.StatusFound)
	}

	http.Redirect(w, r, u, http.StatusFound)
}

// validateTicket validates the ticket with the CAS server and, on success,
// stores the authentication data and registers the session mapping used for
// single logout. Validation failure is terminal; the ticket is single use.
func (c *Client) validateTicket(ticket string, sessionID string, r *http.Request) error {
	service, err := requestURL(r, nil)
	if err != nil {
		return err
	}

	serviceURL := sanitisedURLString(service)

	if glog.V(2) {
		glog.Infof("cas: validating ticket %v for service %v", ticket, serviceURL)
	}

	success, err := c.validator.Validate(r.Context(), ticket, serviceURL)
	if err != nil {
		if glog.V(2) {
			glog.Infof("cas: error validating ticket: %v", err)
		}
		return err
	}

	if err := c.tickets.Write(ticket, success); err != nil {
		return err
	}

	c.mappings.Register(ticket, &clientSession{id: sessionID, ticket: ticket, c: c})

	return nil
}

// GetSession finds or creates a session for the request.
//
// A cookie is set on the response if one is not provided with the request.
// Validates the ticket if the URL parameter is provided.
func (c *Client) GetSession(w http.ResponseWriter, r *http.Request) error {
	cookie := getCookie(w, r, c.domain)

	// The cookie holds the session key, which resolves to the ticket
	// delivered by the CAS server on login.
	if ticket, err := c.sessions.Read(cookie.Value); err == nil {
		if a, err := c.tickets.Read(ticket); err == nil {
			setAuthenticationResponse(r, a)
			return nil
		}
	}

	// No usable session; set one up from the URL ticket, if present.
	ticket := r.URL.Query().Get(c.ticketParam)
	if ticket == "" {
		return nil
	}

	if err := c.validateTicket(ticket, cookie.Value, r); err != nil {
		// Could not validate the ticket, so the URL is served
		// without logged-in status.
		return err
	}

	if err := c.sessions.Write(cookie.Value, ticket); err != nil {
		return err
	}

	a, err := c.tickets.Read(ticket)
	if err != nil {
		clearCookie(w, cookie)
		return err
	}

	setAuthenticationResponse(r, a)

	if c.runOnLogin != nil {
		if err := c.runOnLogin.Run(a.User); err != nil {
			glog.Errorf("cas: login callback failed for %v: %v", a.User, err)
		}
	}

	return nil
}

// getCookie finds or creates the session cookie on the response.
func getCookie(w http.ResponseWriter, r *http.Request, domain string) *http.Cookie {
	c, err := r.Cookie(sessionCookieName)

	if err != nil {
		if glog.V(2) {
			glog.Infof("cas: could not find cookie (%s): %v. Creating a new one.", sessionCookieName, err)
		}

		// Intentionally not enabling HttpOnly so the cookie can
		// still be used by Ajax requests.
		c = &http.Cookie{
			HttpOnly: false,
			Name:     sessionCookieName,
			Value:    newSessionID(),
			MaxAge:   90 * 24 * 60 * 60, // 90 days
			Path:     "/",
			Domain:   domain,
		}

		r.AddCookie(c) // so we can find it later if required
		http.SetCookie(w, c)
	}

	return c
}

// newSessionID generates a new opaque session identifier for use in the cookie.
func newSessionID() string {
	return uuid.NewString()
}

// clearCookie invalidates and removes the cookie from the client.
func clearCookie(w http.ResponseWriter, c *http.Cookie) {
	c.MaxAge = -1
	http.SetCookie(w, c)
}

// SetSession maps the session-id-to-ticket in the Client.
func (c *Client) SetSession(id string, ticket string) error {
	return c.sessions.Write(id, ticket)
}

// ClearSession removes the current session from the client and clears the cookie.
func (c *Client) ClearSession(w http.ResponseWriter, r *http.Request) {
	cookie := getCookie(w, r, c.domain)

	// Get the ticket before deleting the session; both the ticket data
	// and the logout mapping hang off it.
	if ticket, err := c.sessions.Read(cookie.Value); err == nil {
		if err := c.tickets.Delete(ticket); err != nil {
			glog.Errorf("cas: could not delete ticket %v: %v", ticket, err)
		}

		c.mappings.RemoveByTicket(ticket)
	}

	c.mappings.RemoveBySessionID(cookie.Value)

	if err := c.sessions.Delete(cookie.Value); err != nil {
		glog.Errorf("cas: could not delete session %v: %v", cookie.Value, err)
	}

	clearCookie(w, cookie)
}

// clientSession is the local session handle registered in the session
// mapping store. Invalidate tears down the cookie session and its validated
// ticket data, which is all the local state a session has.
type clientSession struct {
	id     string
	ticket string
	c      *Client
}

func (s *clientSession) ID() string {
	return s.id
}

func (s *clientSession) Invalidate() error {
	if err := s.c.tickets.Delete(s.ticket); err != nil {
		return err
	}

	return s.c.sessions.Delete(s.id)
}
