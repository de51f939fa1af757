package cas

import (
	"net/http"
	"path"

	"github.com/golang/glog"
)

// clientHandler handles CAS Protocol HTTP requests
type clientHandler struct {
	c *Client
	h http.Handler
}

// ServeHTTP handles HTTP requests, processes CAS requests
// and passes requests up to its child http.Handler.
//
// Each request is classified exactly once: single logout notice, token
// granting request or ordinary request. A request carrying both a ticket and
// a logout parameter is ambiguous in the protocol; the logout parameter wins
// unless the client was configured with TokenBeforeLogout.
func (ch *clientHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if glog.V(2) {
		glog.Infof("cas: handling %v request for %v", r.Method, r.URL)
	}

	setClient(r, ch.c)
	defer clearRequest(r)

	if !(ch.c.tokenBeforeLogout && ch.isTokenRequest(r)) {
		if ch.isBackChannelLogout(r) {
			ch.performBackChannelLogout(w, r)
			return
		}

		if ch.isFrontChannelLogout(r) {
			ch.performFrontChannelLogout(w, r)
			return
		}
	}

	// Token granting or ordinary request. GetSession validates a ticket
	// if one is present; a validation failure leaves the request
	// unauthenticated and is surfaced through IsAuthenticated.
	ch.c.GetSession(w, r)
	ch.h.ServeHTTP(w, r)
}

func (ch *clientHandler) isTokenRequest(r *http.Request) bool {
	return r.URL.Query().Get(ch.c.ticketParam) != ""
}

// isBackChannelLogout determines whether the request is a server-to-server
// logout notice: an urlencoded POST carrying the logout parameter in its body.
func (ch *clientHandler) isBackChannelLogout(r *http.Request) bool {
	if r.Method != "POST" {
		return false
	}

	if contentType := r.Header.Get("Content-Type"); contentType != "application/x-www-form-urlencoded" {
		return false
	}

	return r.PostFormValue(ch.c.logoutParam) != ""
}

// isFrontChannelLogout determines whether the request is a logout notice
// delivered through the user's browser: the configured front-channel method
// with the logout parameter in the query string.
func (ch *clientHandler) isFrontChannelLogout(r *http.Request) bool {
	if r.Method != ch.c.frontLogoutMethod {
		return false
	}

	return r.URL.Query().Get(ch.c.logoutParam) != ""
}

// performBackChannelLogout invalidates the session named by the logout
// notice. The response is an empty 200 whether or not a session was found,
// so the endpoint cannot be used to probe for live sessions.
func (ch *clientHandler) performBackChannelLogout(w http.ResponseWriter, r *http.Request) {
	message := r.PostFormValue(ch.c.logoutParam)

	logoutRequest, err := parseLogoutRequest([]byte(message))
	if err != nil {
		glog.Errorf("cas: back channel logout: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	ch.c.destroySession(logoutRequest.SessionIndex)
	w.WriteHeader(http.StatusOK)
}

// performFrontChannelLogout invalidates the session named by the logout
// notice and, when the notice carries a relay state, sends the browser back
// to the CAS server to continue the logout round trip.
func (ch *clientHandler) performFrontChannelLogout(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get(ch.c.logoutParam)

	logoutRequest, err := parseLogoutRequest([]byte(message))
	if err != nil {
		glog.Errorf("cas: front channel logout: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	ch.c.destroySession(logoutRequest.SessionIndex)

	relayState := r.URL.Query().Get(ch.c.relayStateParam)
	if relayState == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	u, err := ch.c.logoutContinueURL(relayState)
	if err != nil {
		glog.Errorf("cas: front channel logout: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	http.Redirect(w, r, u, http.StatusFound)
}

// logoutContinueURL builds the CAS server URL that resumes a front-channel
// logout round trip for the given relay state.
func (c *Client) logoutContinueURL(relayState string) (string, error) {
	u, err := c.URL.Parse(path.Join(c.URL.Path, "logout"))
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Add("_eventId", "next")
	q.Add(c.relayStateParam, relayState)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// destroySession invalidates the local session correlated with the ticket.
// Exactly one caller can observe the mapping; stale ticket data is cleaned
// up either way.
func (c *Client) destroySession(ticket string) {
	session, ok := c.mappings.RemoveByTicket(ticket)
	if !ok {
		if glog.V(2) {
			glog.Infof("cas: single logout: no session correlated with ticket %v", ticket)
		}

		// The ticket may still have session state left behind by an
		// embedding layer that never registered a mapping.
		c.tickets.Delete(ticket)
		c.sessions.DeleteFromTicket(ticket)
		return
	}

	if err := session.Invalidate(); err != nil {
		glog.Errorf("cas: single logout: invalidating session %v: %v", session.ID(), err)
	}

	if glog.V(2) {
		glog.Infof("cas: single logout: invalidated session %v for ticket %v", session.ID(), ticket)
	}
}
