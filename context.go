package cas

import (
	"net/http"
	"sync"
)

// Request-scoped data is tracked per *http.Request so that handlers wrapped
// by the client can ask about the current authentication state without
// threading values through every call.
var (
	mu              sync.RWMutex
	clients         = make(map[*http.Request]*Client)
	authenticatedAs = make(map[*http.Request]*AuthenticationResponse)
)

// setClient associates a Client with a http.Request.
func setClient(r *http.Request, c *Client) {
	mu.Lock()
	clients[r] = c
	mu.Unlock()
}

// getClient retrieves the Client associated with the http.Request.
func getClient(r *http.Request) *Client {
	mu.RLock()
	c := clients[r]
	mu.RUnlock()

	return c
}

// setAuthenticationResponse associates validated user data with the request.
func setAuthenticationResponse(r *http.Request, a *AuthenticationResponse) {
	mu.Lock()
	authenticatedAs[r] = a
	mu.Unlock()
}

// getAuthenticationResponse retrieves the user data for the request.
func getAuthenticationResponse(r *http.Request) *AuthenticationResponse {
	mu.RLock()
	a := authenticatedAs[r]
	mu.RUnlock()

	return a
}

// clearRequest removes tracked data once request handling is finished.
func clearRequest(r *http.Request) {
	mu.Lock()
	delete(clients, r)
	delete(authenticatedAs, r)
	mu.Unlock()
}

// IsAuthenticated indicates whether the request has been authenticated with CAS.
func IsAuthenticated(r *http.Request) bool {
	return getAuthenticationResponse(r) != nil
}

// Username returns the authenticated user's login name.
func Username(r *http.Request) string {
	if a := getAuthenticationResponse(r); a != nil {
		return a.User
	}

	return ""
}

// Attributes returns the authenticated user's attributes.
func Attributes(r *http.Request) UserAttributes {
	if a := getAuthenticationResponse(r); a != nil {
		return a.Attributes
	}

	return nil
}

// IsNewLogin indicates whether the session was granted from fresh credentials.
func IsNewLogin(r *http.Request) bool {
	if a := getAuthenticationResponse(r); a != nil {
		return a.IsNewLogin
	}

	return false
}

// RedirectToLogin replies with a redirect to the CAS login page.
func RedirectToLogin(w http.ResponseWriter, r *http.Request) {
	c := getClient(r)
	if c == nil {
		http.Error(w, "cas: no client associated with request", http.StatusInternalServerError)
		return
	}

	c.RedirectToLogin(w, r, nil)
}

// RedirectToLogout replies with a redirect to the CAS logout page after
// clearing the local session.
func RedirectToLogout(w http.ResponseWriter, r *http.Request) {
	c := getClient(r)
	if c == nil {
		http.Error(w, "cas: no client associated with request", http.StatusInternalServerError)
		return
	}

	c.RedirectToLogout(w, r)
}
