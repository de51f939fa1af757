package cas

import (
	"net/http"

	"github.com/golang/glog"
)

// Handler wraps h, requiring CAS authentication for every request.
// Unauthenticated requests are redirected to the CAS login page.
func (c *Client) Handler(h http.Handler) http.Handler {
	return c.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAuthenticated(r) {
			RedirectToLogin(w, r)
			return
		}

		if r.URL.Path == "/logout" {
			RedirectToLogout(w, r)
			return
		}

		h.ServeHTTP(w, r)
	}))
}

// AllowAnonHandler wraps h, establishing CAS session state when present but
// serving anonymous requests as well.
func (c *Client) AllowAnonHandler(h http.Handler) http.Handler {
	return c.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bool(glog.V(2)) && IsAuthenticated(r) {
			glog.Infof("cas: request by authenticated user %v", Username(r))
		}

		if r.URL.Path == "/logout" {
			RedirectToLogout(w, r)
			return
		}

		h.ServeHTTP(w, r)
	}))
}
