package cas

import (
	"context"
	"encoding/xml"
	"net/http"
	"path"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// ErrProxyGrantingTicketNotFound reports an IOU with no delivered PGT, either
// because the callback has not arrived yet or because the entry expired.
var ErrProxyGrantingTicketNotFound = errors.New("cas: proxy: no proxy granting ticket for iou")

// ProxyReceptor returns the handler for the proxy callback endpoint the CAS
// server delivers (pgtIou, pgtId) pairs to. The endpoint also answers the
// server's availability probe, which carries no parameters.
func (c *Client) ProxyReceptor() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		pgtIou := q.Get("pgtIou")
		pgtID := q.Get("pgtId")

		if pgtIou == "" || pgtID == "" {
			// availability probe
			w.WriteHeader(http.StatusOK)
			return
		}

		if err := c.pgtStorage.Save(pgtIou, pgtID); err != nil {
			glog.Errorf("cas: proxy receptor: saving pgt for iou %v: %v", pgtIou, err)
			http.Error(w, "cannot save proxy granting ticket", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	})
}

type xmlProxyResponse struct {
	XMLName xml.Name                  `xml:"serviceResponse"`
	Success *xmlProxySuccess          `xml:"proxySuccess"`
	Failure *xmlAuthenticationFailure `xml:"proxyFailure"`
}

type xmlProxySuccess struct {
	ProxyTicket string `xml:"proxyTicket"`
}

// RequestProxyTicket exchanges a proxy granting ticket for a proxy ticket
// usable against targetService. The IOU is consumed: a second request with
// the same IOU fails with ErrProxyGrantingTicketNotFound.
func (c *Client) RequestProxyTicket(ctx context.Context, pgtIou, targetService string) (string, error) {
	pgt, ok := c.pgtStorage.Consume(pgtIou)
	if !ok {
		return "", ErrProxyGrantingTicketNotFound
	}

	u, err := c.URL.Parse(path.Join(c.URL.Path, "proxy"))
	if err != nil {
		return "", errors.Wrap(err, "cas: proxy: bad proxy url")
	}

	q := u.Query()
	q.Add("pgt", pgt)
	q.Add("targetService", targetService)
	u.RawQuery = q.Encode()

	r, err := http.NewRequest("GET", u.String(), nil)
	if err != nil {
		return "", errors.Wrap(err, "cas: proxy: new request")
	}

	r = r.WithContext(ctx)

	resp, err := c.client.Do(r)
	if err != nil {
		return "", errors.Wrap(err, "cas: proxy: proxy request")
	}
	defer resp.Body.Close()

	var x xmlProxyResponse
	if err := xml.NewDecoder(resp.Body).Decode(&x); err != nil {
		return "", errors.Wrap(err, "cas: proxy: parsing proxy response")
	}

	if x.Failure != nil {
		return "", &AuthenticationError{Code: x.Failure.Code, Message: x.Failure.Message}
	}

	if x.Success == nil || x.Success.ProxyTicket == "" {
		return "", &AuthenticationError{Code: INTERNAL_ERROR, Message: "no proxy ticket in response"}
	}

	if glog.V(2) {
		glog.Infof("cas: proxy: obtained proxy ticket for %v", targetService)
	}

	return x.Success.ProxyTicket, nil
}
