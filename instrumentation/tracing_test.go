package instrumentation

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSpanHelpers_NilSafe(t *testing.T) {
	RecordError(nil, errors.New("boom"))
	SetSpanSuccess(nil)
	SetSpanError(nil, "boom")
	SetSpanAttributes(nil, attribute.String("k", "v"))
	AddFlowAttributes(nil, "client", "flow")
	AddStorageAttributes(nil, "op", "memory")
	AddHTTPAttributes(nil, "GET", "/", 200)
	AddSecurityAttributes(nil, "192.0.2.1")
}
