// Package router matches an incoming request's (host, path) against a
// routing table of HostPath -> Handler, with an optional authorization
// pass ahead of it (spec §4.9). The two entry points this module actually
// serves are SwindonChat (the §4.5 WebSocket handler) and the admin
// handlers (§4.6); every other Handler kind is an external collaborator
// specified only by its Handler interface.
package router

import (
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Authorizer decides whether a request may proceed to its matched
// handler, given the request's headers and remote address (spec §4.9,
// §9 Open Question 3). The only concrete implementation the repo ships is
// SourceNetworks; an LDAP-backed Authorizer is left as an interface
// satisfying stub per the unresolved Open Question.
type Authorizer interface {
	Allow(headers http.Header, addr net.Addr) bool
}

// SourceNetworks allows a request only if its remote address falls within
// one of Networks (grounded on original_source's authorizers::source_ip
// check referenced from incoming/authorizer.rs).
type SourceNetworks struct {
	Networks []net.IPNet
}

func (s SourceNetworks) Allow(_ http.Header, addr net.Addr) bool {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range s.Networks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Route binds one HostPath entry to a Handler and an optional Authorizer
// (spec §4.9). Host may be "" to match any host, or "*.example.com" to
// match a wildcard subdomain the way original_source's parse_host does.
type Route struct {
	Host       string
	Path       string
	Handler    http.Handler
	Authorizer Authorizer
}

// Table is an ordered routing table: at ServeHTTP time it is searched for
// the longest matching Path within the most specific matching Host,
// mirroring original_source/src/routing.rs's "sort by longest first" rule.
type Table struct {
	routes []Route
	log    zerolog.Logger
}

// New returns an empty Table. Routes must be added before the first
// ServeHTTP call; Table does no internal locking (the table is built once
// at startup from static config, spec §4.9).
func New(log zerolog.Logger) *Table {
	return &Table{log: log.With().Str("component", "router").Logger()}
}

// Add registers route, keeping the table sorted by Host specificity (exact
// hosts, then wildcard hosts longest first, then the any-host "") and,
// within one Host, longest-path-first, so the most specific match always
// wins.
func (t *Table) Add(route Route) {
	t.routes = append(t.routes, route)
	hostRank := func(h string) int {
		switch {
		case h == "":
			return 0
		case strings.HasPrefix(h, "*."):
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(t.routes, func(i, j int) bool {
		a, b := t.routes[i], t.routes[j]
		if ra, rb := hostRank(a.Host), hostRank(b.Host); ra != rb {
			return ra > rb
		}
		if len(a.Host) != len(b.Host) {
			return len(a.Host) > len(b.Host)
		}
		return len(a.Path) > len(b.Path)
	})
}

// match finds the most specific Route whose Host and Path both match r,
// or false if none do. A path matches if it equals the route's Path or is
// bounded by "/", "?", or "#" immediately after the prefix, matching
// original_source's `^prefix(?:$|/|\?|#)` regex boundary rule.
func (t *Table) match(host, path string) (Route, bool) {
	for _, route := range t.routes {
		if !hostMatches(route.Host, host) {
			continue
		}
		if pathMatches(route.Path, path) {
			return route, true
		}
	}
	return Route{}, false
}

func hostMatches(routeHost, reqHost string) bool {
	if routeHost == "" {
		return true
	}
	if strings.HasPrefix(routeHost, "*.") {
		suffix := routeHost[1:] // ".example.com"
		return strings.HasSuffix(reqHost, suffix) && reqHost != suffix[1:]
	}
	return routeHost == reqHost
}

func pathMatches(routePath, reqPath string) bool {
	if !strings.HasPrefix(reqPath, routePath) {
		return false
	}
	if len(reqPath) == len(routePath) {
		return true
	}
	switch reqPath[len(routePath)] {
	case '/', '?', '#':
		return true
	default:
		return false
	}
}

// ServeHTTP matches one Route for the request (404 on no match), then asks
// that Route's Authorizer, if it has one (403 on denial); a Route with no
// Authorizer is always allowed.
func (t *Table) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := stripPort(r.Host)
	route, ok := t.match(host, r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if route.Authorizer != nil && !route.Authorizer.Allow(r.Header, requestAddr(r)) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	route.Handler.ServeHTTP(w, r)
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func requestAddr(r *http.Request) net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(stripPort(r.RemoteAddr))}
}
