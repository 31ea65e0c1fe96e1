package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
)

// DefaultTrustedProxies are loopback and private networks.
var DefaultTrustedProxies = []string{
	"127.0.0.0/8",
	"::1/128",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
}

// ProxyResolver finds the client address of a request. Forwarding headers
// are honoured only when the connection comes from a trusted proxy.
type ProxyResolver struct {
	trusted   []*net.IPNet
	untrusted atomic.Int64
}

// NewProxyResolver trusts the given CIDRs, or DefaultTrustedProxies when
// none are given.
func NewProxyResolver(cidrs ...string) (*ProxyResolver, error) {
	if len(cidrs) == 0 {
		cidrs = DefaultTrustedProxies
	}
	p := &ProxyResolver{}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy CIDR %q: %w", cidr, err)
		}
		p.trusted = append(p.trusted, network)
	}
	return p, nil
}

// ClientIP returns the first valid X-Forwarded-For hop, then X-Real-IP, when
// the peer is trusted; otherwise the peer address. Ignored forwarding
// headers are counted.
func (p *ProxyResolver) ClientIP(r *http.Request) string {
	ip, ignored := p.resolve(r)
	if ignored {
		p.untrusted.Add(1)
	}
	return ip
}

// Address resolves like ClientIP without counting ignored headers.
func (p *ProxyResolver) Address(r *http.Request) string {
	ip, _ := p.resolve(r)
	return ip
}

func (p *ProxyResolver) resolve(r *http.Request) (string, bool) {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	forwarded := r.Header.Get("X-Forwarded-For")
	realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))

	ip := net.ParseIP(peer)
	if ip == nil || !p.isTrusted(ip) {
		return peer, forwarded != "" || realIP != ""
	}

	if forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); net.ParseIP(first) != nil {
			return first, false
		}
	}
	if net.ParseIP(realIP) != nil {
		return realIP, false
	}
	return peer, false
}

func (p *ProxyResolver) isTrusted(ip net.IP) bool {
	for _, network := range p.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// UntrustedForwards counts requests whose forwarding headers were ignored
// because the peer is not a trusted proxy.
func (p *ProxyResolver) UntrustedForwards() int64 {
	return p.untrusted.Load()
}
