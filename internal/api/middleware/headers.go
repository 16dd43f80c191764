// SPDX-License-Identifier: MIT

package middleware

// Canonical header names of the lock API.
const (
	HeaderRequestID      = "X-Request-Id"
	HeaderTenantID       = "X-Tenant-Id"
	HeaderOwnerID        = "X-Owner-Id"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderIfMatch        = "If-Match"
	HeaderRetryAfter     = "Retry-After"
)
