package middleware

import (
	"net/http"
	"net/netip"

	"github.com/gin-gonic/gin"
)

// IPWhitelist restricts a route group to the given addresses. Entries may
// be single IPs ("10.0.0.1") or CIDR ranges ("10.0.0.0/8"). An empty list
// allows everyone; malformed entries are skipped.
func IPWhitelist(entries []string) gin.HandlerFunc {
	var addrs []netip.Addr
	var prefixes []netip.Prefix
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			prefixes = append(prefixes, p)
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			addrs = append(addrs, a)
		}
	}

	allowed := func(ip netip.Addr) bool {
		for _, a := range addrs {
			if a == ip {
				return true
			}
		}
		for _, p := range prefixes {
			if p.Contains(ip) {
				return true
			}
		}
		return false
	}

	return func(c *gin.Context) {
		if len(addrs) == 0 && len(prefixes) == 0 {
			c.Next()
			return
		}
		ip, err := netip.ParseAddr(c.ClientIP())
		if err != nil || !allowed(ip) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}
