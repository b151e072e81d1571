package scheduling

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusSending, true},
		{StatusSending, StatusSent, true},
		{StatusSending, StatusError, true},
		{StatusPending, StatusSent, false},
		{StatusPending, StatusError, false},
		{StatusSent, StatusPending, false},
		{StatusSent, StatusError, false},
		{StatusError, StatusSending, false},
		{StatusSending, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
			got, err := tt.from.Transition(tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, got)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.Equal(t, tt.from, got)
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Pending ")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, s)

	_, err = ParseStatus("queued")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCreateRequestValidate(t *testing.T) {
	due := time.Now().Add(time.Hour)
	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"valid", CreateRequest{ConversationID: "c", Body: " oi ", DueAt: due}, nil},
		{"missing conversation", CreateRequest{Body: "oi", DueAt: due}, ErrMissingConversation},
		{"blank body", CreateRequest{ConversationID: "c", Body: "   ", DueAt: due}, ErrEmptyBody},
		{"missing due", CreateRequest{ConversationID: "c", Body: "oi"}, ErrMissingDueAt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			err := req.Validate()
			if tt.want == nil {
				require.NoError(t, err)
				assert.Equal(t, "oi", req.Body)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
