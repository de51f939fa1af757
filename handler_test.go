package cas

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	mu       sync.Mutex
	response *AuthenticationResponse
	err      error
	calls    int
}

func (v *stubValidator) Validate(ctx context.Context, ticket, service string) (*AuthenticationResponse, error) {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()

	if v.err != nil {
		return nil, v.err
	}

	if v.response != nil {
		return v.response, nil
	}

	return &AuthenticationResponse{User: "jsmith", Attributes: make(UserAttributes)}, nil
}

func (v *stubValidator) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type handlerFixture struct {
	client    *Client
	validator *stubValidator
	server    *httptest.Server
	http      *http.Client

	mu       sync.Mutex
	lastAuth bool
	lastUser string
}

func newHandlerFixture(t *testing.T, configure func(*Options)) *handlerFixture {
	t.Helper()

	casURL, err := url.Parse("https://cas.example.com/cas/")
	require.NoError(t, err)

	f := &handlerFixture{validator: &stubValidator{}}

	options := &Options{
		URL:       casURL,
		Validator: f.validator,
	}

	if configure != nil {
		configure(options)
	}

	f.client = NewClient(options)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastAuth = IsAuthenticated(r)
		f.lastUser = Username(r)
		f.mu.Unlock()
		w.Write([]byte("ok"))
	})

	f.server = httptest.NewServer(f.client.Handle(inner))
	t.Cleanup(f.server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	f.http = &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return f
}

func (f *handlerFixture) get(t *testing.T, query url.Values) *http.Response {
	t.Helper()

	u := f.server.URL + "/"
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	resp, err := f.http.Get(u)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func (f *handlerFixture) postForm(t *testing.T, form url.Values) *http.Response {
	t.Helper()

	resp, err := f.http.PostForm(f.server.URL+"/", form)
	require.NoError(t, err)
	return resp
}

func (f *handlerFixture) authenticated() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth, f.lastUser
}

func TestTokenGrantingRequest(t *testing.T) {
	f := newHandlerFixture(t, nil)

	resp := f.get(t, url.Values{"ticket": {"ST-123"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	auth, user := f.authenticated()
	assert.True(t, auth)
	assert.Equal(t, "jsmith", user)

	session, ok := f.client.mappings.RemoveByTicket("ST-123")
	require.True(t, ok, "token request should register a session mapping")
	assert.NotEmpty(t, session.ID())
}

func TestTokenGrantingRequestValidationFailure(t *testing.T) {
	f := newHandlerFixture(t, nil)
	f.validator.err = &AuthenticationError{Code: INVALID_TICKET, Message: "consumed"}

	f.get(t, url.Values{"ticket": {"ST-bad"}})

	auth, _ := f.authenticated()
	assert.False(t, auth, "failed validation leaves the request unauthenticated")

	_, ok := f.client.mappings.RemoveByTicket("ST-bad")
	assert.False(t, ok, "failed validation must not register a mapping")
}

func TestBackChannelLogout(t *testing.T) {
	f := newHandlerFixture(t, nil)

	// establish a session with ticket ST-123
	f.get(t, url.Values{"ticket": {"ST-123"}})

	resp := f.postForm(t, url.Values{"logoutRequest": {GenerateBackChannelLogoutMessage("ST-123")}})
	body, err := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body, "logout response must not leak session existence")

	_, ok := f.client.mappings.RemoveByTicket("ST-123")
	assert.False(t, ok, "logout should consume the session mapping")

	// the cookie session no longer authenticates
	f.get(t, nil)
	auth, _ := f.authenticated()
	assert.False(t, auth)
}

func TestBackChannelLogoutUnknownTicket(t *testing.T) {
	f := newHandlerFixture(t, nil)

	resp := f.postForm(t, url.Values{"logoutRequest": {GenerateBackChannelLogoutMessage("ST-unknown")}})
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode, "unknown tickets get the same benign response")
}

func TestFrontChannelLogout(t *testing.T) {
	f := newHandlerFixture(t, nil)

	f.get(t, url.Values{"ticket": {"ST-123"}})

	message, err := GenerateFrontChannelLogoutMessage("ST-123")
	require.NoError(t, err)

	resp := f.get(t, url.Values{"logoutRequest": {message}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Location"), "no redirect without relay state")

	_, ok := f.client.mappings.RemoveByTicket("ST-123")
	assert.False(t, ok)
}

func TestFrontChannelLogoutUnknownTicket(t *testing.T) {
	f := newHandlerFixture(t, nil)

	message, err := GenerateFrontChannelLogoutMessage("ST-unknown")
	require.NoError(t, err)

	resp := f.get(t, url.Values{"logoutRequest": {message}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Location"))
}

func TestFrontChannelLogoutRelayState(t *testing.T) {
	f := newHandlerFixture(t, nil)

	f.get(t, url.Values{"ticket": {"ST-123"}})

	message, err := GenerateFrontChannelLogoutMessage("ST-123")
	require.NoError(t, err)

	resp := f.get(t, url.Values{"logoutRequest": {message}, "RelayState": {"e1s1"}})
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	location := resp.Header.Get("Location")
	assert.Contains(t, location, "e1s1")
	assert.Contains(t, location, "cas.example.com")
}

func TestMalformedLogoutMessage(t *testing.T) {
	f := newHandlerFixture(t, nil)

	f.get(t, url.Values{"ticket": {"ST-123"}})

	malformed := `<samlp:LogoutRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="LR-1"/>`
	resp := f.postForm(t, url.Values{"logoutRequest": {malformed}})
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode, "malformed messages are not a fatal error")

	_, ok := f.client.mappings.RemoveByTicket("ST-123")
	assert.True(t, ok, "malformed messages must not invalidate sessions")
}

func TestLogoutTakesPrecedenceOverTicket(t *testing.T) {
	f := newHandlerFixture(t, nil)

	message, err := GenerateFrontChannelLogoutMessage("ST-9")
	require.NoError(t, err)

	resp := f.get(t, url.Values{"ticket": {"ST-9"}, "logoutRequest": {message}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, f.validator.callCount(), "logout wins over the ticket by default")
}

func TestTokenBeforeLogoutPolicy(t *testing.T) {
	f := newHandlerFixture(t, func(o *Options) {
		o.TokenBeforeLogout = true
	})

	message, err := GenerateFrontChannelLogoutMessage("ST-9")
	require.NoError(t, err)

	f.get(t, url.Values{"ticket": {"ST-9"}, "logoutRequest": {message}})
	assert.Equal(t, 1, f.validator.callCount(), "configured policy resolves the ambiguity for the ticket")
}

func TestOrdinaryRequestPassesThrough(t *testing.T) {
	f := newHandlerFixture(t, nil)

	resp := f.get(t, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	auth, _ := f.authenticated()
	assert.False(t, auth)
	assert.Equal(t, 0, f.validator.callCount())
}
