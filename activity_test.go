package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	auth "github.com/goliatone/go-auth-gate"
)

func TestMultiActivitySink(t *testing.T) {
	first := &captureSink{}
	second := &captureSink{}
	boom := errors.New("sink down")
	failing := auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error { return boom })

	sink := auth.MultiActivitySink{first, nil, failing, second}
	err := sink.Record(context.Background(), auth.ActivityEvent{EventType: auth.ActivityEventLoginSuccess})

	assert.ErrorIs(t, err, boom)
	assert.Len(t, first.Events(), 1)
	assert.Len(t, second.Events(), 1)
}

func TestActivitySinkFunc_Nil(t *testing.T) {
	var f auth.ActivitySinkFunc
	assert.NoError(t, f.Record(context.Background(), auth.ActivityEvent{}))
}

func TestLoggingActivitySink_Levels(t *testing.T) {
	tests := []struct {
		event auth.ActivityEventType
		level string
	}{
		{auth.ActivityEventAdmissionAnomaly, "Error"},
		{auth.ActivityEventAdmissionError, "Error"},
		{auth.ActivityEventAdmissionRejected, "Warn"},
		{auth.ActivityEventLoginFailure, "Warn"},
		{auth.ActivityEventAdmissionAccepted, "Debug"},
		{auth.ActivityEventStampRotated, "Debug"},
	}

	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			logger := &MockLogger{}
			logger.On(tt.level, "auth activity", mock.Anything).Once()

			sink := auth.LoggingActivitySink{Logger: logger}
			err := sink.Record(context.Background(), auth.ActivityEvent{
				EventType: tt.event,
				UserID:    "7",
				Reason:    auth.ReasonUserNotActive,
				Err:       errors.New("detail"),
				Metadata:  map[string]any{"k": "v"},
			})

			assert.NoError(t, err)
			logger.AssertExpectations(t)
		})
	}
}

func TestAdmissionGate_SinkErrorIsLogged(t *testing.T) {
	logger := &MockLogger{}
	logger.On("Warn", "admission activity sink error", mock.Anything).Once()

	failing := auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error {
		return errors.New("sink down")
	})
	gate := auth.NewAdmissionGate(&MockIdentityStore{},
		auth.WithAdmissionActivitySink(failing),
		auth.WithAdmissionLogger(logger),
	)

	_, err := gate.Admit(context.Background(), auth.NewPrincipal())
	reason, _ := auth.RejectionReason(err)
	assert.Equal(t, auth.ReasonNoClaims, reason)
	logger.AssertExpectations(t)
}
