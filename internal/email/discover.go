package email

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

const defaultIMAPSPort = "993"

// Discoverer guesses the IMAP server of an institution's mail domain
type Discoverer struct {
	// Probe reports whether something accepts connections at addr
	Probe func(ctx context.Context, addr string) bool
	// LookupMX resolves the domain's mail exchangers
	LookupMX func(ctx context.Context, domain string) ([]*net.MX, error)
}

// NewDiscoverer creates a discoverer using TCP probes and system DNS
func NewDiscoverer() *Discoverer {
	return &Discoverer{
		Probe:    probeTCP,
		LookupMX: net.DefaultResolver.LookupMX,
	}
}

// Discover returns host:port of the first reachable candidate for domain:
// imap.<domain>, mail.<domain>, <domain>, then hosts derived from the MX
// records.
func (d *Discoverer) Discover(ctx context.Context, domain string) (string, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" || strings.ContainsAny(domain, "@/ ") {
		return "", fmt.Errorf("invalid mail domain %q", domain)
	}

	candidates := []string{"imap." + domain, "mail." + domain, domain}
	for _, host := range candidates {
		addr := net.JoinHostPort(host, defaultIMAPSPort)
		if d.Probe(ctx, addr) {
			return addr, nil
		}
	}

	// e.g., mx.example.edu -> imap.example.edu
	mxs, err := d.LookupMX(ctx, domain)
	if err != nil || len(mxs) == 0 {
		return "", fmt.Errorf("no IMAP server found for %s", domain)
	}
	mxHost := strings.TrimSuffix(mxs[0].Host, ".")
	if _, base, ok := strings.Cut(mxHost, "."); ok && base != domain {
		for _, host := range []string{"imap." + base, "mail." + base} {
			addr := net.JoinHostPort(host, defaultIMAPSPort)
			if d.Probe(ctx, addr) {
				return addr, nil
			}
		}
	}

	return "", fmt.Errorf("no IMAP server found for %s", domain)
}

func probeTCP(ctx context.Context, addr string) bool {
	dialer := net.Dialer{Timeout: 3 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// DomainOf returns the part of an address after the first '@', lowercased
func DomainOf(address string) string {
	_, domain, ok := strings.Cut(strings.TrimSpace(address), "@")
	if !ok {
		return ""
	}
	return strings.ToLower(domain)
}
