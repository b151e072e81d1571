package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLM struct {
	resp  LLMResponse
	err   error
	calls int
	last  LLMRequest
}

func (s *stubLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.calls++
	s.last = req
	return s.resp, s.err
}

func TestFallbackLLMClient(t *testing.T) {
	t.Run("primary succeeds", func(t *testing.T) {
		primary := &stubLLM{resp: LLMResponse{Text: "primary"}}
		fallback := &stubLLM{resp: LLMResponse{Text: "fallback"}}
		resp, err := NewFallbackLLMClient(primary, fallback, nil).Complete(context.Background(), LLMRequest{})
		require.NoError(t, err)
		assert.Equal(t, "primary", resp.Text)
		assert.Equal(t, 0, fallback.calls)
	})

	t.Run("fallback used", func(t *testing.T) {
		primary := &stubLLM{err: errors.New("quota")}
		fallback := &stubLLM{resp: LLMResponse{Text: "fallback"}}
		resp, err := NewFallbackLLMClient(primary, fallback, nil).Complete(context.Background(), LLMRequest{})
		require.NoError(t, err)
		assert.Equal(t, "fallback", resp.Text)
	})

	t.Run("no fallback", func(t *testing.T) {
		primary := &stubLLM{err: errors.New("quota")}
		_, err := NewFallbackLLMClient(primary, nil, nil).Complete(context.Background(), LLMRequest{})
		assert.EqualError(t, err, "quota")
	})

	t.Run("both fail", func(t *testing.T) {
		primary := &stubLLM{err: errors.New("quota")}
		fallback := &stubLLM{err: errors.New("down")}
		_, err := NewFallbackLLMClient(primary, fallback, nil).Complete(context.Background(), LLMRequest{})
		assert.EqualError(t, err, "down")
	})
}
