package cas

import (
	"net/url"
	"strings"
)

var urlCleanParameters = []string{"gateway", "renew", "service", "ticket"}

// sanitisedURL cleans a URL of CAS specific parameters
func sanitisedURL(unclean *url.URL) *url.URL {
	q := unclean.Query()

	for _, param := range urlCleanParameters {
		q.Del(param)
	}

	unclean.RawQuery = q.Encode()

	return unclean
}

// sanitisedURLString cleans a URL and returns its string value
func sanitisedURLString(unclean *url.URL) string {
	return strings.TrimSuffix(sanitisedURL(unclean).String(), "/")
}
