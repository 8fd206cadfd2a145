package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var rpcSchemes = map[string]bool{"http": true, "https": true, "ws": true, "wss": true}

// blockedHosts are cloud metadata services that must never be dialed.
var blockedHosts = []string{"metadata.google.internal", "metadata.google", "169.254.169.254"}

// ValidateRPCURL checks that a JSON-RPC endpoint is dialable and safe.
// Loopback and private literals (a local devnet node) are accepted only
// when allowPrivate is set. Hostnames are not resolved.
func ValidateRPCURL(rawURL string, allowPrivate bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format")
	}
	if !rpcSchemes[u.Scheme] {
		return fmt.Errorf("URL scheme must be http, https, ws or wss")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	host := u.Hostname()
	for _, b := range blockedHosts {
		if strings.EqualFold(host, b) {
			return fmt.Errorf("URL host %q is not allowed", host)
		}
	}

	if allowPrivate {
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("loopback addresses are not allowed")
	}
	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}
	return nil
}

func checkIP(ip net.IP) error {
	if ip.IsLoopback() {
		return fmt.Errorf("loopback addresses are not allowed")
	}
	if ip.IsPrivate() {
		return fmt.Errorf("private addresses are not allowed")
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("link-local addresses are not allowed")
	}
	if ip.IsUnspecified() {
		return fmt.Errorf("unspecified addresses are not allowed")
	}
	return nil
}
