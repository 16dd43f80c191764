// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for the lock engine.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Hold attributes
	HoldTenantKey      = "hold.tenant_id"
	HoldPerformanceKey = "hold.performance_id"
	HoldIDKey          = "hold.id"
	HoldSeatCountKey   = "hold.seat_count"
	HoldVersionKey     = "hold.version"
	HoldOutcomeKey     = "hold.outcome"

	// Ledger attributes
	LedgerScriptKey  = "ledger.script"
	LedgerAttemptKey = "ledger.attempt"
	LedgerKeysKey    = "ledger.keys"

	// Stream attributes
	StreamPartitionKey = "stream.partition"
	StreamSequenceKey  = "stream.sequence"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// HoldAttributes creates hold-operation span attributes.
func HoldAttributes(tenant, performance, holdID string, seats int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if tenant != "" {
		attrs = append(attrs, attribute.String(HoldTenantKey, tenant))
	}
	if performance != "" {
		attrs = append(attrs, attribute.String(HoldPerformanceKey, performance))
	}
	if holdID != "" {
		attrs = append(attrs, attribute.String(HoldIDKey, holdID))
	}
	if seats > 0 {
		attrs = append(attrs, attribute.Int(HoldSeatCountKey, seats))
	}
	return attrs
}

// LedgerAttributes creates ledger-script span attributes.
func LedgerAttributes(script string, keys, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(LedgerScriptKey, script),
		attribute.Int(LedgerKeysKey, keys),
		attribute.Int(LedgerAttemptKey, attempt),
	}
}

// StreamAttributes creates change-stream span attributes.
func StreamAttributes(partition string, sequence int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StreamPartitionKey, partition),
		attribute.Int64(StreamSequenceKey, sequence),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
