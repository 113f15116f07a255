package alert

import (
	"fmt"
	"strings"
)

// SuccessMessage is shown to the user when the receiver accepted the alert.
const SuccessMessage = "Alert sent successfully!"

// FailureKind classifies why an attempt (or part of one) failed.
type FailureKind string

const (
	PermissionDenied  FailureKind = "permission_denied"
	AcquisitionFailed FailureKind = "acquisition_failed"
	TransportError    FailureKind = "transport_error"
	ServerRejected    FailureKind = "server_rejected"
	Cancelled         FailureKind = "cancelled"
)

// Detail strings shared between acquisition and transport.
const (
	DetailTimeout  = "timeout"
	DetailDeclined = "declined"
	DetailNoFix    = "no fix"
	DetailBadFix   = "invalid coordinates"
)

// FailureReason is a specific, user-reportable failure.
type FailureReason struct {
	Kind       FailureKind `json:"kind"`
	Capability Capability  `json:"capability,omitempty"`
	Detail     string      `json:"detail,omitempty"`
	StatusCode int         `json:"status_code,omitempty"`
	Body       string      `json:"body,omitempty"`
}

func DeniedFailure(c Capability) FailureReason {
	return FailureReason{Kind: PermissionDenied, Capability: c}
}

func AcquisitionFailure(c Capability, detail string) FailureReason {
	return FailureReason{Kind: AcquisitionFailed, Capability: c, Detail: detail}
}

func TransportFailure(detail string) FailureReason {
	return FailureReason{Kind: TransportError, Detail: detail}
}

func RejectedFailure(status int, body string) FailureReason {
	return FailureReason{Kind: ServerRejected, StatusCode: status, Body: body}
}

func CancelledFailure() FailureReason {
	return FailureReason{Kind: Cancelled}
}

// Error renders the reason as the message the user sees.
func (r FailureReason) Error() string {
	switch r.Kind {
	case PermissionDenied:
		return capitalize(string(r.Capability)) + " permission denied"
	case AcquisitionFailed:
		return r.acquisitionMessage()
	case TransportError:
		if r.Detail == "" {
			return "Failed: Network error"
		}
		return "Failed: " + r.Detail
	case ServerRejected:
		body := strings.TrimSpace(r.Body)
		if body == "" {
			return fmt.Sprintf("Error: %d", r.StatusCode)
		}
		return fmt.Sprintf("Error: %d %s", r.StatusCode, body)
	case Cancelled:
		return "Alert cancelled"
	default:
		return "Failed: " + string(r.Kind)
	}
}

func (r FailureReason) acquisitionMessage() string {
	switch r.Capability {
	case Location:
		if r.Detail == DetailNoFix {
			return "Unable to retrieve location"
		}
		return "Location error: " + r.Detail
	case Camera:
		if r.Detail == DetailDeclined {
			return "No photo attached"
		}
		return "Photo error: " + r.Detail
	default:
		return fmt.Sprintf("%s error: %s", r.Capability, r.Detail)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Outcome is the terminal result of one attempt.
type Outcome struct {
	AttemptID string         `json:"attempt_id"`
	Succeeded bool           `json:"succeeded"`
	Message   string         `json:"message"`
	Reason    *FailureReason `json:"reason,omitempty"`
}

func Success(attemptID, message string) Outcome {
	if message == "" {
		message = SuccessMessage
	}
	return Outcome{AttemptID: attemptID, Succeeded: true, Message: message}
}

func Failure(attemptID string, reason FailureReason) Outcome {
	r := reason
	return Outcome{AttemptID: attemptID, Message: r.Error(), Reason: &r}
}
