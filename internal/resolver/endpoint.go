package resolver

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ServiceURIFlag is the companion argument announcing the debug endpoint.
const ServiceURIFlag = "--vm-service-uri="

// ErrNoServiceURI reports a companion command line without ServiceURIFlag.
var ErrNoServiceURI = errors.New("service uri argument missing")

// EndpointParseError describes a companion whose announced endpoint is
// missing or unusable. The companion is skipped.
type EndpointParseError struct {
	PID         int
	CommandLine string
	Err         error
}

func (e *EndpointParseError) Error() string {
	return fmt.Sprintf("companion %d: %v", e.PID, e.Err)
}

func (e *EndpointParseError) Unwrap() error {
	return e.Err
}

// CompanionEndpoint extracts the announced debug endpoint from a companion
// command line. The returned URL always carries a numeric port.
func CompanionEndpoint(commandLine string) (*url.URL, error) {
	var raw string
	found := false
	for _, arg := range strings.Fields(commandLine) {
		if strings.HasPrefix(arg, ServiceURIFlag) {
			raw = strings.TrimPrefix(arg, ServiceURIFlag)
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNoServiceURI
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse service uri: %w", err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("service uri %q is not absolute", raw)
	}
	if _, err := strconv.Atoi(u.Port()); err != nil {
		return nil, fmt.Errorf("service uri %q has no numeric port", raw)
	}
	return u, nil
}

// WebSocketURI rewrites an HTTP service URI into the streaming endpoint
// address: http becomes ws, https becomes wss and "ws" is appended to the path.
func WebSocketURI(u *url.URL) string {
	out := *u
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		out.Scheme = "wss"
	default:
		out.Scheme = "ws"
	}
	out.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	out.RawPath = ""
	out.Fragment = ""
	return out.String()
}
