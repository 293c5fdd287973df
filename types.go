package oauth1

import (
	"net/url"
	"strings"
)

// Form field names of protocol responses.
const (
	FieldToken             = "oauth_token"
	FieldTokenSecret       = "oauth_token_secret" //nolint:gosec // G101: field name, not a credential
	FieldCallbackConfirmed = "oauth_callback_confirmed"
	FieldProblem           = "oauth_problem"
	FieldProblemAdvice     = "oauth_problem_advice"
)

// TokenResponse is the form-encoded body returned by the request-token and
// access-token endpoints.
type TokenResponse struct {
	Token       string
	TokenSecret string

	// CallbackConfirmed is only sent on the request-token step.
	CallbackConfirmed bool
}

// Encode returns the response in application/x-www-form-urlencoded form,
// fields in protocol order.
func (r TokenResponse) Encode() string {
	f := form{}
	f.add(FieldToken, r.Token)
	f.add(FieldTokenSecret, r.TokenSecret)
	if r.CallbackConfirmed {
		f.add(FieldCallbackConfirmed, "true")
	}
	return f.String()
}

// ErrorResponse is the form-encoded body of a protocol error, in the style of
// the OAuth Problem Reporting extension.
type ErrorResponse struct {
	Problem string
	Advice  string
}

// Encode returns the response in application/x-www-form-urlencoded form.
func (r ErrorResponse) Encode() string {
	f := form{}
	f.add(FieldProblem, r.Problem)
	if r.Advice != "" {
		f.add(FieldProblemAdvice, r.Advice)
	}
	return f.String()
}

// WhoAmIResponse is returned by the sample protected resource.
type WhoAmIResponse struct {
	ClientKey string `json:"client_key"`
	FlowID    string `json:"flow_id"`
}

// form is an ordered url.Values.
type form []string

func (f *form) add(key, value string) {
	*f = append(*f, url.QueryEscape(key)+"="+url.QueryEscape(value))
}

func (f form) String() string {
	return strings.Join(f, "&")
}
