package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	siteerrors "github.com/conneroisu/trattoria/internal/errors"
	"github.com/conneroisu/trattoria/internal/logging"
)

// SecurityConfig holds the response headers and origin policy applied to
// every request.
type SecurityConfig struct {
	CSP            *CSPConfig
	HSTSMaxAge     int
	XFrameOptions  string
	ReferrerPolicy string
	// AllowedOrigins may issue state-changing requests in addition to the
	// server's own origin.
	AllowedOrigins []string
	Logger         logging.Logger
}

// CSPConfig lists the Content-Security-Policy directives. Empty directives
// are omitted.
type CSPConfig struct {
	DefaultSrc     []string
	ScriptSrc      []string
	StyleSrc       []string
	ImgSrc         []string
	ConnectSrc     []string
	FontSrc        []string
	ObjectSrc      []string
	FrameAncestors []string
	BaseURI        []string
	FormAction     []string

	UpgradeInsecureRequests bool
}

// DefaultSecurityConfig returns the policy for development. Section images
// may come from any https host; scripts only from this server.
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		CSP: &CSPConfig{
			DefaultSrc:     []string{"'self'"},
			ScriptSrc:      []string{"'self'"},
			StyleSrc:       []string{"'self'", "'unsafe-inline'"},
			ImgSrc:         []string{"'self'", "data:", "https:"},
			ConnectSrc:     []string{"'self'", "ws:", "wss:"},
			FontSrc:        []string{"'self'", "https:"},
			ObjectSrc:      []string{"'none'"},
			FrameAncestors: []string{"'none'"},
			BaseURI:        []string{"'self'"},
			FormAction:     []string{"'self'"},
		},
		XFrameOptions:  "DENY",
		ReferrerPolicy: "strict-origin-when-cross-origin",
	}
}

// ProductionSecurityConfig tightens the default policy for HTTPS deployments.
func ProductionSecurityConfig() *SecurityConfig {
	config := DefaultSecurityConfig()
	config.CSP.ConnectSrc = []string{"'self'", "wss:"}
	config.CSP.UpgradeInsecureRequests = true
	config.HSTSMaxAge = 31536000
	return config
}

// SecurityMiddleware applies the security headers and rejects state-changing
// requests whose Origin is neither this server nor an allowed origin.
func SecurityMiddleware(secConfig *SecurityConfig) func(http.Handler) http.Handler {
	if secConfig == nil {
		secConfig = DefaultSecurityConfig()
	}
	logger := secConfig.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	csp := ""
	if secConfig.CSP != nil {
		csp = buildCSPHeader(secConfig.CSP)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if csp != "" {
				h.Set("Content-Security-Policy", csp)
			}
			if secConfig.HSTSMaxAge > 0 && r.TLS != nil {
				h.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", secConfig.HSTSMaxAge))
			}
			if secConfig.XFrameOptions != "" {
				h.Set("X-Frame-Options", secConfig.XFrameOptions)
			}
			if secConfig.ReferrerPolicy != "" {
				h.Set("Referrer-Policy", secConfig.ReferrerPolicy)
			}
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")

			if isUnsafeMethod(r.Method) && !isValidOrigin(r, secConfig.AllowedOrigins) {
				logger.Warn(r.Context(),
					siteerrors.NewValidationError("INVALID_ORIGIN", "cross-origin write rejected"),
					"Security: invalid origin",
					"origin", r.Header.Get("Origin"),
					"method", r.Method,
					"path", r.URL.Path)
				writeError(w, r, logger, &siteerrors.SiteError{
					Type:    siteerrors.ErrorTypeForbidden,
					Code:    "INVALID_ORIGIN",
					Message: "cross-origin request rejected",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isUnsafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// isValidOrigin accepts requests without an Origin header (same-origin
// navigations and non-browser clients), same-host origins and the allow list.
func isValidOrigin(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
			return true
		}
	}
	return false
}

func buildCSPHeader(csp *CSPConfig) string {
	var directives []string
	add := func(name string, values []string) {
		if len(values) > 0 {
			directives = append(directives, name+" "+strings.Join(values, " "))
		}
	}

	add("default-src", csp.DefaultSrc)
	add("script-src", csp.ScriptSrc)
	add("style-src", csp.StyleSrc)
	add("img-src", csp.ImgSrc)
	add("connect-src", csp.ConnectSrc)
	add("font-src", csp.FontSrc)
	add("object-src", csp.ObjectSrc)
	add("frame-ancestors", csp.FrameAncestors)
	add("base-uri", csp.BaseURI)
	add("form-action", csp.FormAction)
	if csp.UpgradeInsecureRequests {
		directives = append(directives, "upgrade-insecure-requests")
	}

	return strings.Join(directives, "; ")
}
