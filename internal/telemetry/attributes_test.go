// SPDX-License-Identifier: MIT
package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("POST", "/v1/holds", "http://localhost/v1/holds", 201)
	assert.Len(t, attrs, 4)
	assert.Contains(t, attrs, attribute.String(HTTPMethodKey, "POST"))
	assert.Contains(t, attrs, attribute.Int(HTTPStatusCodeKey, 201))
}

func TestHoldAttributesSkipsEmpty(t *testing.T) {
	attrs := HoldAttributes("t1", "", "h-9", 0)
	assert.Len(t, attrs, 2)
	assert.Contains(t, attrs, attribute.String(HoldTenantKey, "t1"))
	assert.Contains(t, attrs, attribute.String(HoldIDKey, "h-9"))
}

func TestLedgerAttributes(t *testing.T) {
	attrs := LedgerAttributes("acquire", 4, 2)
	assert.Contains(t, attrs, attribute.String(LedgerScriptKey, "acquire"))
	assert.Contains(t, attrs, attribute.Int(LedgerKeysKey, 4))
	assert.Contains(t, attrs, attribute.Int(LedgerAttemptKey, 2))
}

func TestStreamAttributes(t *testing.T) {
	attrs := StreamAttributes("t1:p2", 42)
	assert.Contains(t, attrs, attribute.String(StreamPartitionKey, "t1:p2"))
	assert.Contains(t, attrs, attribute.Int64(StreamSequenceKey, 42))
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes(errors.New("boom"), "conflict")
	assert.Contains(t, attrs, attribute.Bool(ErrorKey, true))
	assert.Contains(t, attrs, attribute.String(ErrorTypeKey, "conflict"))
}
