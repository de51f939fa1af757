package cas

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyReceptorStoresDeliveredPair(t *testing.T) {
	storage := NewMemoryProxyGrantingTicketStorage()
	c := NewClient(&Options{
		URL:                        &url.URL{Scheme: "https", Host: "cas.example.com"},
		ProxyGrantingTicketStorage: storage,
	})

	server := httptest.NewServer(c.ProxyReceptor())
	defer server.Close()

	resp, err := http.Get(server.URL + "?pgtIou=PGTIOU-1&pgtId=PGT-1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	pgt, ok := storage.Retrieve("PGTIOU-1")
	require.True(t, ok)
	assert.Equal(t, "PGT-1", pgt)
}

func TestProxyReceptorAnswersProbe(t *testing.T) {
	c := NewClient(&Options{URL: &url.URL{Scheme: "https", Host: "cas.example.com"}})

	server := httptest.NewServer(c.ProxyReceptor())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestProxyTicket(t *testing.T) {
	var query url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/proxy", r.URL.Path)
		query = r.URL.Query()

		fmt.Fprint(w, `<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
			<cas:proxySuccess><cas:proxyTicket>PT-42</cas:proxyTicket></cas:proxySuccess>
		</cas:serviceResponse>`)
	}))
	defer server.Close()

	c := NewClient(&Options{
		URL:    casServerURL(t, server),
		Client: server.Client(),
	})

	require.NoError(t, c.pgtStorage.Save("PGTIOU-1", "PGT-1"))

	pt, err := c.RequestProxyTicket(context.Background(), "PGTIOU-1", "https://backend.example.com/")
	require.NoError(t, err)

	assert.Equal(t, "PT-42", pt)
	assert.Equal(t, "PGT-1", query.Get("pgt"))
	assert.Equal(t, "https://backend.example.com/", query.Get("targetService"))

	// the IOU is consumed
	_, err = c.RequestProxyTicket(context.Background(), "PGTIOU-1", "https://backend.example.com/")
	assert.ErrorIs(t, err, ErrProxyGrantingTicketNotFound)
}

func TestRequestProxyTicketFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
			<cas:proxyFailure code="INVALID_TICKET">pgt expired</cas:proxyFailure>
		</cas:serviceResponse>`)
	}))
	defer server.Close()

	c := NewClient(&Options{
		URL:    casServerURL(t, server),
		Client: server.Client(),
	})

	require.NoError(t, c.pgtStorage.Save("PGTIOU-1", "PGT-1"))

	_, err := c.RequestProxyTicket(context.Background(), "PGTIOU-1", "https://backend.example.com/")
	require.Error(t, err)

	authErr, ok := err.(*AuthenticationError)
	require.True(t, ok)
	assert.Equal(t, INVALID_TICKET, authErr.Code)
}

func TestRequestProxyTicketUnknownIou(t *testing.T) {
	c := NewClient(&Options{URL: &url.URL{Scheme: "https", Host: "cas.example.com"}})

	_, err := c.RequestProxyTicket(context.Background(), "PGTIOU-nope", "https://backend.example.com/")
	assert.ErrorIs(t, err, ErrProxyGrantingTicketNotFound)
}
