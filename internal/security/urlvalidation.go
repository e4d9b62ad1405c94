package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/docbridge/docbridge/internal/config"
)

var (
	ErrInvalidURL         = errors.New("invalid URL format")
	ErrInvalidScheme      = errors.New("URL scheme must be http or https")
	ErrPrivateIP          = errors.New("URL points to private/local IP address")
	ErrBlockedDomain      = errors.New("domain is in blocklist")
	ErrEmptyURL           = errors.New("URL cannot be empty")
	ErrIPResolutionFailed = errors.New("failed to resolve domain")
)

// ValidateURL checks a URL supplied by an external party before it is
// fetched. Callback payloads carry download URLs chosen by the document
// server; without this check a compromised or spoofed server could steer
// fetches at internal services.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return ErrEmptyURL
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return ErrInvalidScheme
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		return fmt.Errorf("%w: missing hostname", ErrInvalidURL)
	}

	blockedDomains := config.Get("BLOCKED_DOMAINS", "")
	if blockedDomains != "" {
		for _, domain := range strings.Split(blockedDomains, ",") {
			domain = strings.TrimSpace(domain)
			if domain != "" && (hostname == domain || strings.HasSuffix(hostname, "."+domain)) {
				return fmt.Errorf("%w: %s", ErrBlockedDomain, hostname)
			}
		}
	}

	if config.GetBool("BLOCK_PRIVATE_IPS", false) {
		if err := checkPrivateIP(hostname); err != nil {
			return err
		}
	}

	return nil
}

func checkPrivateIP(hostname string) error {
	ip := net.ParseIP(hostname)
	if ip == nil {
		ips, err := net.LookupIP(hostname)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIPResolutionFailed, err)
		}
		if len(ips) == 0 {
			return fmt.Errorf("%w: no IPs found for hostname", ErrIPResolutionFailed)
		}
		for _, resolvedIP := range ips {
			if isPrivateIP(resolvedIP) {
				return fmt.Errorf("%w: %s resolves to %s", ErrPrivateIP, hostname, resolvedIP.String())
			}
		}
		return nil
	}

	if isPrivateIP(ip) {
		return fmt.Errorf("%w: %s", ErrPrivateIP, ip.String())
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		// carrier-grade NAT
		if ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127 {
			return true
		}
		// benchmarking and documentation ranges
		if ip4[0] == 198 && (ip4[1] == 18 || ip4[1] == 19) {
			return true
		}
		if ip4[0] == 198 && ip4[1] == 51 && ip4[2] == 100 {
			return true
		}
		if ip4[0] == 203 && ip4[1] == 0 && ip4[2] == 113 {
			return true
		}
	}

	s := ip.String()
	if strings.HasPrefix(s, "fc") || strings.HasPrefix(s, "fd") || strings.HasPrefix(s, "fe80:") {
		return true
	}

	return false
}
