package signature

import (
	"sort"
	"strings"
)

// BaseString builds the signature base string (RFC 5849 section 3.4.1):
// the uppercase method, the base string URI and the normalized parameters,
// each percent-encoded and joined with '&'. oauth_signature is excluded.
func BaseString(r *Request) string {
	return strings.ToUpper(r.Method) + "&" + Encode(r.BaseURL) + "&" + Encode(NormalizeParams(r.All()))
}

// NormalizeParams encodes every pair, sorts by name then value and joins them
// as name=value separated by '&'.
func NormalizeParams(params []Param) string {
	encoded := make([]Param, 0, len(params))
	for _, p := range params {
		if p.Key == ParamSignature {
			continue
		}
		encoded = append(encoded, Param{Key: Encode(p.Key), Value: Encode(p.Value)})
	}

	sort.Slice(encoded, func(i, j int) bool {
		if encoded[i].Key != encoded[j].Key {
			return encoded[i].Key < encoded[j].Key
		}
		return encoded[i].Value < encoded[j].Value
	})

	var b strings.Builder
	for i, p := range encoded {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}
