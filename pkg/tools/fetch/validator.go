package fetch

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// privateRanges is the set of CIDR blocks considered non-public.
// Populated once at package init; used by Validate.
var privateRanges []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16", // link-local
		"::1/128",
		"fc00::/7",  // unique-local IPv6
		"fe80::/10", // link-local IPv6
	} {
		_, network, err := net.ParseCIDR(cidr)
		if err == nil {
			privateRanges = append(privateRanges, network)
		}
	}
}

// metadataHosts are well-known cloud metadata hostnames, rejected outright.
var metadataHosts = map[string]struct{}{
	"metadata.google.internal": {},
	"metadata.azure.com":       {},
}

// metadataIPs are well-known cloud metadata endpoints across providers.
var metadataIPs = []net.IP{
	net.ParseIP("169.254.169.254"), // AWS/GCP/Azure
	net.ParseIP("100.100.100.200"), // Alibaba
	net.ParseIP("fd00:ec2::254"),   // AWS IPv6
}

// resolver is swappable so tests can control name resolution.
type ipResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

var resolver ipResolver = net.DefaultResolver

// Validate classifies an outbound URL as safe or unsafe. Checks run in order
// and terminate on the first violation: scheme must be exactly https, then
// the host (literal or resolved) must not be private, loopback, link-local or
// a cloud metadata endpoint. DNS failures are non-fatal; the subsequent
// network call is allowed to fail naturally.
func Validate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &domain.SecurityError{URL: rawURL, Reason: "unparsable URL"}
	}

	if u.Scheme != "https" {
		return &domain.SecurityError{
			URL:    rawURL,
			Reason: fmt.Sprintf("scheme %q is not allowed, only https", u.Scheme),
		}
	}

	host := u.Hostname()
	if host == "" {
		return &domain.SecurityError{URL: rawURL, Reason: "missing host"}
	}
	if strings.EqualFold(host, "localhost") {
		return &domain.SecurityError{URL: rawURL, Reason: "localhost is not reachable"}
	}
	if _, ok := metadataHosts[strings.ToLower(host)]; ok {
		return &domain.SecurityError{URL: rawURL, Reason: "cloud metadata host"}
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(rawURL, ip)
	}

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		// Unresolvable names are not a policy violation.
		return nil
	}
	for _, addr := range addrs {
		if err := checkIP(rawURL, addr.IP); err != nil {
			return err
		}
	}
	return nil
}

func checkIP(rawURL string, ip net.IP) error {
	for _, meta := range metadataIPs {
		if ip.Equal(meta) {
			return &domain.SecurityError{URL: rawURL, Reason: "cloud metadata address"}
		}
	}
	for _, r := range privateRanges {
		if r.Contains(ip) {
			return &domain.SecurityError{URL: rawURL, Reason: "private or loopback address"}
		}
	}
	return nil
}

// ValidateRedirect validates a redirect target and additionally rejects
// cross-origin hops (different scheme, host or port), regardless of how the
// target classifies on its own.
func ValidateRedirect(ctx context.Context, originalURL, targetURL string) error {
	if err := Validate(ctx, targetURL); err != nil {
		return err
	}
	if !sameOrigin(originalURL, targetURL) {
		return &domain.SecurityError{URL: targetURL, Reason: "cross-origin redirect"}
	}
	return nil
}

func sameOrigin(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return ua.Scheme == ub.Scheme &&
		strings.EqualFold(ua.Hostname(), ub.Hostname()) &&
		portOrDefault(ua) == portOrDefault(ub)
}

func portOrDefault(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "https" {
		return "443"
	}
	return "80"
}
