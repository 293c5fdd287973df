package oauth1

import (
	"html/template"
	"net/http"
)

var authorizePage = template.Must(template.New("authorize").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{if .Verifier}}Authorization code{{else}}Authorization failed{{end}}</title>
<style>
body { font-family: system-ui, sans-serif; background: #f5f6f8; color: #1f2328; margin: 0; }
main { max-width: 28rem; margin: 15vh auto; background: #fff; border-radius: 8px; padding: 2rem; box-shadow: 0 1px 3px rgba(0,0,0,.12); text-align: center; }
.code { font-family: ui-monospace, monospace; font-size: 2.5rem; letter-spacing: .4rem; margin: 1.5rem 0; }
.muted { color: #59636e; font-size: .9rem; }
</style>
</head>
<body>
<main>
{{if .Verifier}}
<h1>Access granted</h1>
<p>Enter this code in the application that asked for access:</p>
<p class="code">{{.Verifier}}</p>
{{if .Reauthorized}}<p class="muted">This code replaces any code shown earlier for the same request.</p>{{end}}
<p class="muted">You can close this window.</p>
{{else}}
<h1>Authorization failed</h1>
<p>{{.Message}}</p>
<p class="muted">Start the sign-in again from the application.</p>
{{end}}
</main>
</body>
</html>
`))

type authorizePageData struct {
	Verifier     string
	Reauthorized bool
	Message      string
}

// renderAuthorizePage writes the page shown to the resource owner.
func (h *Handler) renderAuthorizePage(w http.ResponseWriter, r *http.Request, status int, data authorizePageData) {
	h.setSecurityHeaders(w, r, true)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := authorizePage.Execute(w, data); err != nil {
		h.logger.Error("Failed to render authorize page", "error", err)
	}
}
