// Package intake is a development receiver for beacon's outgoing requests.
// It implements the alert service's side of the wire protocol so that the
// dispatcher can be exercised end to end without the real backend.
//
// # Security Model
//
//   - When a secret is configured, the X-Beacon-Signature header must carry
//     a valid HMAC-SHA256 of the raw body (constant-time comparison)
//   - Body size limits are enforced before parsing
//   - Signature failures answer a generic 403 with no details
//   - Request logging excludes photo bytes and coordinates
//
// # Endpoints
//
//	POST /emergency_alert/{recipientID}   multipart: latitude, longitude, photo
//	POST /contacts                        multipart: user_id, name, phone, relationship, address
//
// # Error Responses
//
//   - 400 Bad Request: malformed multipart, unpaired or invalid coordinates,
//     photo not image/jpeg, missing contact fields
//   - 403 Forbidden: invalid or missing signature
//   - 413 Payload Too Large: body exceeds max_body_size
package intake
