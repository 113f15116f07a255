package intake

import (
	"time"

	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/transport"
)

// Config holds intake server configuration.
type Config struct {
	Listen string

	// Secret enables signature verification when non-empty.
	Secret string

	// MaxBodySize is the maximum request body in bytes (default: 10 MB).
	MaxBodySize int64

	// OnAlert and OnContact are called for every accepted request.
	OnAlert   func(RecordedAlert)
	OnContact func(transport.Contact)
}

// RecordedAlert is an alert the receiver accepted.
type RecordedAlert struct {
	RecipientID string        `json:"recipient_id"`
	Fix         *alert.GeoFix `json:"fix,omitempty"`
	Photo       []byte        `json:"-"`
	PhotoBytes  int           `json:"photo_bytes"`
	ReceivedAt  time.Time     `json:"received_at"`
}

// MessageResponse is the JSON body of every successful response.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the JSON response for intake errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	DefaultMaxBodySize = 10 << 20

	AlertReceivedMessage = "Emergency alert received"
	ContactAddedMessage  = "Contact added"
)
