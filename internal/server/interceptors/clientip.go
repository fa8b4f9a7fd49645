package interceptors

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync/atomic"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

var trustedProxies atomic.Pointer[[]netip.Prefix]

// SetTrustedProxies replaces the set of peers whose x-forwarded-for and x-real-ip headers are
// believed. Entries are IPs or CIDRs. An empty list trusts no peer, so the client address is
// always the transport peer.
func SetTrustedProxies(entries []string) error {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return fmt.Errorf("interceptors: trusted proxy %q is not an IP or CIDR", e)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	trustedProxies.Store(&prefixes)
	return nil
}

func isTrustedProxy(addr netip.Addr) bool {
	list := trustedProxies.Load()
	if list == nil {
		return false
	}
	for _, p := range *list {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the caller's IP. Forwarded headers are used only when the transport peer is
// a trusted proxy: x-forwarded-for is walked from the right and the first hop that is not a
// trusted proxy wins, then x-real-ip. Otherwise the peer address is returned, or "unknown".
func ClientIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	addr, ok := peerAddr(p.Addr)
	if !ok {
		return p.Addr.String()
	}
	if isTrustedProxy(addr) {
		if fwd, ok := forwardedIP(ctx); ok {
			return fwd.String()
		}
	}
	return addr.String()
}

func peerAddr(a net.Addr) (netip.Addr, bool) {
	s := a.String()
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func forwardedIP(ctx context.Context) (netip.Addr, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return netip.Addr{}, false
	}
	var hops []string
	for _, v := range md.Get("x-forwarded-for") {
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hops = append(hops, h)
			}
		}
	}
	if len(hops) > 0 {
		var last netip.Addr
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(hops[i])
			if err != nil {
				break
			}
			last = addr.Unmap()
			if !isTrustedProxy(last) {
				return last, true
			}
		}
		if last.IsValid() {
			return last, true
		}
		return netip.Addr{}, false
	}
	if vals := md.Get("x-real-ip"); len(vals) > 0 {
		if addr, err := netip.ParseAddr(strings.TrimSpace(vals[0])); err == nil {
			return addr.Unmap(), true
		}
	}
	return netip.Addr{}, false
}
