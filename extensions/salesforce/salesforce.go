package salesforce

import (
	"errors"
	"net/http"
	"strings"
)

// DefaultDomain is the domain suffix of the hosts that receive the token
const DefaultDomain = "salesforce.com"

// ErrNoToken is returned when a request to Salesforce is made without a
// token
var ErrNoToken = errors.New("no Token provided to authenticator transport")

// StaticTokenAuthenticator adds your Salesforce Access Token to your
// requests
type StaticTokenAuthenticator struct {
	// Token is the string obtained either from the Salesforce CX CLI (for
	// example). You can also retrieve this by using the curl command on
	// https://developer.salesforce.com/docs/atlas.en-us.api_iot.meta/api_iot/qs_auth_access_token.htm
	Token string
	// Transport is any http transport that satisfies the http.RoundTripper
	// interface. http.DefaultTransport is used when it is nil.
	Transport http.RoundTripper
	// Domains lists the domains the token is sent to: the domain itself
	// and its subdomains. It defaults to DefaultDomain.
	Domains []string
}

// RoundTrip implements the RoundTripper interface
func (t *StaticTokenAuthenticator) RoundTrip(request *http.Request) (*http.Response, error) {
	if !t.authenticates(request.URL.Hostname()) {
		return t.transport().RoundTrip(request)
	}
	if t.Token == "" {
		return nil, ErrNoToken
	}

	newRequest := deepCopyRequestWithHeaders(request)
	newRequest.Header.Set("Authorization", "Bearer "+t.Token)
	return t.transport().RoundTrip(newRequest)
}

func (t *StaticTokenAuthenticator) transport() http.RoundTripper {
	if t.Transport == nil {
		return http.DefaultTransport
	}
	return t.Transport
}

func (t *StaticTokenAuthenticator) authenticates(hostname string) bool {
	domains := t.Domains
	if len(domains) == 0 {
		domains = []string{DefaultDomain}
	}
	for _, domain := range domains {
		if hostname == domain || strings.HasSuffix(hostname, "."+domain) {
			return true
		}
	}
	return false
}

func deepCopyRequestWithHeaders(request *http.Request) *http.Request {
	newRequest := new(http.Request)
	*newRequest = *request

	newRequest.Header = make(http.Header, len(request.Header))
	for header, values := range request.Header {
		newRequest.Header[header] = append([]string(nil), values...)
	}
	return newRequest
}
