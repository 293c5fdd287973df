package security

import "net/http"

// SetSecurityHeaders sets the headers shared by every protocol response.
// Token responses carry secrets, so nothing may be cached or framed.
func SetSecurityHeaders(w http.ResponseWriter, https bool) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	h.Set("Referrer-Policy", "no-referrer")
	if https {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	h.Set("Pragma", "no-cache")
}

// SetPageHeaders sets headers for the HTML page shown to the resource owner.
// It extends SetSecurityHeaders with a policy that allows the page's inline styles.
func SetPageHeaders(w http.ResponseWriter, https bool) {
	SetSecurityHeaders(w, https)
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'")
}
