package stitch

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// MinClips is the smallest request worth stitching.
const MinClips = 2

// OriginPolicy decides which clip URLs the service may fetch: the service's
// own origin, or one of a fixed set of trusted storage hosts. Both come from
// configuration only; nothing a client sends widens the policy.
type OriginPolicy struct {
	base         *url.URL
	trustedHosts []string
}

// NewOriginPolicy builds a policy. publicBaseURL may be empty; the service
// then has no origin of its own and relative clip URLs are rejected.
func NewOriginPolicy(publicBaseURL string, trustedHosts []string) (*OriginPolicy, error) {
	p := &OriginPolicy{}
	for _, h := range trustedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			p.trustedHosts = append(p.trustedHosts, h)
		}
	}
	if strings.TrimSpace(publicBaseURL) == "" {
		return p, nil
	}
	base, err := url.Parse(publicBaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("invalid public base url %q", publicBaseURL)
	}
	p.base = base
	return p, nil
}

// Resolve parses a clip URL, resolving relative references against the
// service origin, and checks it against the policy.
func (p *OriginPolicy) Resolve(raw string) (*url.URL, error) {
	if p == nil {
		p = &OriginPolicy{}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("url is empty")
	}

	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "blob:") || strings.HasPrefix(lower, "data:") {
		return nil, fmt.Errorf("url is a browser-local reference and cannot be fetched by the server; upload the clip first")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("url is malformed")
	}
	if !u.IsAbs() {
		if p.base == nil {
			return nil, fmt.Errorf("relative url %q cannot be resolved: no public base url is configured", raw)
		}
		u = p.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url scheme %q is not supported", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url has no host")
	}
	if !p.Allowed(u) {
		return nil, fmt.Errorf("host %q is not an allowed clip origin", u.Hostname())
	}
	return u, nil
}

// Allowed reports whether u points at the service origin or a trusted host.
// A trusted host starting with "." matches any of its subdomains.
func (p *OriginPolicy) Allowed(u *url.URL) bool {
	if p == nil || u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if p.base != nil && strings.EqualFold(p.base.Scheme, u.Scheme) && hostPort(p.base) == hostPort(u) {
		return true
	}

	name := strings.ToLower(u.Hostname())
	if ip := net.ParseIP(name); ip != nil {
		// IP literals only pass as the service's own origin.
		return false
	}
	for _, trusted := range p.trustedHosts {
		if strings.HasPrefix(trusted, ".") {
			if strings.HasSuffix(name, trusted) {
				return true
			}
			continue
		}
		if name == trusted {
			return true
		}
	}
	return false
}

// hostPort is u's lowercased host with the scheme's default port filled in,
// so https://a.example and https://a.example:443 compare equal.
func hostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "80"
		if strings.EqualFold(u.Scheme, "https") {
			port = "443"
		}
	}
	return net.JoinHostPort(strings.ToLower(u.Hostname()), port)
}

// Validate checks a request before any work begins and returns the resolved
// clip URLs in request order. It performs no network calls.
func Validate(req *StitchRequest, policy *OriginPolicy, maxClips int) ([]*url.URL, error) {
	if req == nil {
		return nil, validationError("request is empty")
	}
	if len(req.Clips) < MinClips {
		return nil, validationError("at least %d clips are required to stitch, got %d", MinClips, len(req.Clips))
	}
	if maxClips > 0 && len(req.Clips) > maxClips {
		return nil, validationError("at most %d clips can be stitched, got %d", maxClips, len(req.Clips))
	}

	urls := make([]*url.URL, len(req.Clips))
	for i, clip := range req.Clips {
		u, err := policy.Resolve(clip.URL)
		if err != nil {
			return nil, validationError("clip %d: %v", i+1, err)
		}
		urls[i] = u
	}
	return urls, nil
}
