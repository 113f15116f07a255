package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureReasonMessages(t *testing.T) {
	tests := []struct {
		reason FailureReason
		want   string
	}{
		{DeniedFailure(Location), "Location permission denied"},
		{DeniedFailure(Camera), "Camera permission denied"},
		{AcquisitionFailure(Location, DetailNoFix), "Unable to retrieve location"},
		{AcquisitionFailure(Location, "gps offline"), "Location error: gps offline"},
		{AcquisitionFailure(Camera, DetailDeclined), "No photo attached"},
		{AcquisitionFailure(Camera, DetailTimeout), "Photo error: timeout"},
		{TransportFailure(DetailTimeout), "Failed: timeout"},
		{TransportFailure(""), "Failed: Network error"},
		{RejectedFailure(500, "server error"), "Error: 500 server error"},
		{RejectedFailure(404, "  "), "Error: 404"},
		{CancelledFailure(), "Alert cancelled"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.reason.Error())
	}
}

func TestOutcomeConstructors(t *testing.T) {
	ok := Success("a1", "")
	assert.True(t, ok.Succeeded)
	assert.Equal(t, SuccessMessage, ok.Message)
	assert.Nil(t, ok.Reason)

	failed := Failure("a2", RejectedFailure(500, "server error"))
	assert.False(t, failed.Succeeded)
	assert.Equal(t, "a2", failed.AttemptID)
	if assert.NotNil(t, failed.Reason) {
		assert.Equal(t, ServerRejected, failed.Reason.Kind)
		assert.Equal(t, 500, failed.Reason.StatusCode)
		assert.Equal(t, "server error", failed.Reason.Body)
	}
	assert.Equal(t, "Error: 500 server error", failed.Message)
}
