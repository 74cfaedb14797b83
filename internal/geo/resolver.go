// Package geo resolves a best-effort client country and timezone.
//
// Resolution never fails: platform headers win, then a bounded IP lookup
// (cached in Redis when available), and anything else degrades to unknown.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/af-corp/persona-assistant/internal/config"
	"github.com/af-corp/persona-assistant/internal/types"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	SourceHeader  = "header"
	SourceLookup  = "ip_lookup"
	SourceUnknown = "unknown"

	redisKeyPrefix = "persona:geo:"
)

var (
	countryHeaders  = []string{"X-Vercel-IP-Country", "CF-IPCountry", "X-Country-Code"}
	timezoneHeaders = []string{"X-Vercel-IP-Timezone", "X-Timezone"}
)

// Resolver derives GeoInfo from a request.
type Resolver struct {
	client *http.Client
	rdb    *redis.Client
	cfg    func() config.GeoConfig
	group  singleflight.Group
	// OnResolve, when set, observes the source of each resolution.
	OnResolve func(source string)
}

// NewResolver creates a resolver. A nil rdb disables lookup caching.
func NewResolver(cfg func() config.GeoConfig, client *http.Client, rdb *redis.Client) *Resolver {
	if client == nil {
		client = &http.Client{}
	}
	return &Resolver{client: client, rdb: rdb, cfg: cfg}
}

// Resolve returns the client location for r.
func (g *Resolver) Resolve(ctx context.Context, r *http.Request) types.GeoInfo {
	info := g.resolve(ctx, r)
	if g.OnResolve != nil {
		g.OnResolve(info.Source)
	}
	return info
}

func (g *Resolver) resolve(ctx context.Context, r *http.Request) types.GeoInfo {
	if info, ok := FromHeaders(r.Header); ok {
		return info
	}

	ip := clientIP(r)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return unknown()
	}

	info, ok := g.lookup(ctx, ip.String())
	if !ok {
		return unknown()
	}
	return info
}

// FromHeaders reads platform-injected geo headers.
func FromHeaders(h http.Header) (types.GeoInfo, bool) {
	var country string
	for _, name := range countryHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" && !strings.EqualFold(v, "XX") {
			country = strings.ToUpper(v)
			break
		}
	}
	if country == "" {
		return types.GeoInfo{}, false
	}

	tz := ""
	for _, name := range timezoneHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			tz = v
			break
		}
	}
	if tz == "" || !validTimezone(tz) {
		tz = TimezoneFor(country)
	}
	return types.GeoInfo{Country: country, Timezone: tz, Source: SourceHeader}, true
}

func unknown() types.GeoInfo {
	return types.GeoInfo{Timezone: defaultTimezone, Source: SourceUnknown}
}

func clientIP(r *http.Request) net.IP {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(strings.TrimSpace(host))
}

func validTimezone(tz string) bool {
	_, err := time.LoadLocation(tz)
	return err == nil
}

type lookupResponse struct {
	CountryCode string `json:"country_code"`
	Timezone    string `json:"timezone"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

func (g *Resolver) lookup(ctx context.Context, ip string) (types.GeoInfo, bool) {
	cfg := g.cfg()
	if cfg.LookupURL == "" {
		return types.GeoInfo{}, false
	}

	if g.rdb != nil {
		cached, err := g.rdb.Get(ctx, redisKeyPrefix+ip).Bytes()
		if err == nil {
			var info types.GeoInfo
			if err := json.Unmarshal(cached, &info); err == nil {
				return info, true
			}
		}
	}

	v, err, _ := g.group.Do(ip, func() (any, error) {
		return g.fetch(ctx, cfg, ip)
	})
	if err != nil {
		slog.Debug("geo lookup failed", "ip", ip, "error", err)
		return types.GeoInfo{}, false
	}
	info := v.(types.GeoInfo)

	if g.rdb != nil && cfg.CacheTTL > 0 {
		if data, err := json.Marshal(info); err == nil {
			g.rdb.Set(ctx, redisKeyPrefix+ip, data, cfg.CacheTTL)
		}
	}
	return info, true
}

func (g *Resolver) fetch(ctx context.Context, cfg config.GeoConfig, ip string) (types.GeoInfo, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(lookupCtx, http.MethodGet, fmt.Sprintf(cfg.LookupURL, ip), nil)
	if err != nil {
		return types.GeoInfo{}, fmt.Errorf("create geo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return types.GeoInfo{}, fmt.Errorf("geo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return types.GeoInfo{}, fmt.Errorf("read geo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return types.GeoInfo{}, fmt.Errorf("geo lookup returned status %d", resp.StatusCode)
	}

	var lr lookupResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return types.GeoInfo{}, fmt.Errorf("unmarshal geo response: %w", err)
	}
	if lr.Error || lr.CountryCode == "" {
		return types.GeoInfo{}, fmt.Errorf("geo lookup unresolved: %s", lr.Reason)
	}

	country := strings.ToUpper(lr.CountryCode)
	tz := lr.Timezone
	if tz == "" || !validTimezone(tz) {
		tz = TimezoneFor(country)
	}
	return types.GeoInfo{Country: country, Timezone: tz, Source: SourceLookup}, nil
}
