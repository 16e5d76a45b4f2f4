package session

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bgentry/go-netrc/netrc"
)

// transportNetrc adds the basic authentication of the netrc machine matching the host of the request.
// Credentials are sent without waiting for a challenge, only over https.
type transportNetrc struct {
	originalTransport http.RoundTripper
	netrc             *netrc.Netrc
	userAgent         string
}

func newTransportNetrc(original http.RoundTripper, netrcFile, userAgent string) (*transportNetrc, error) {
	if original == nil {
		original = http.DefaultTransport
	}
	t := &transportNetrc{originalTransport: original, userAgent: userAgent}
	if netrcFile == "" {
		return t, nil
	}
	n, err := netrc.ParseFile(netrcFile)
	if err != nil {
		return nil, fmt.Errorf("newTransportNetrc: %w", err)
	}
	t.netrc = n
	return t, nil
}

// machine returns nil if no machine (except the default one) matches the host
func (t *transportNetrc) machine(host string) *netrc.Machine {
	if t.netrc == nil {
		return nil
	}
	m := t.netrc.FindMachine(strings.ToLower(host))
	if m == nil || m.IsDefault() || m.Login == "" {
		return nil
	}
	return m
}

func (t *transportNetrc) RoundTrip(req *http.Request) (*http.Response, error) {
	m := t.machine(req.URL.Hostname())
	withAuth := m != nil && req.URL.Scheme == "https" && req.Header.Get("Authorization") == ""
	withUA := t.userAgent != "" && req.Header.Get("User-Agent") == ""
	if withAuth || withUA {
		// RoundTrip must not modify the request
		req = req.Clone(req.Context())
		if withAuth {
			req.SetBasicAuth(m.Login, m.Password)
		}
		if withUA {
			req.Header.Set("User-Agent", t.userAgent)
		}
	}
	return t.originalTransport.RoundTrip(req)
}
