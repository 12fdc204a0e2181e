package detector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) Inspect(ctx context.Context, r *http.Request) (Signal, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(Signal), args.Error(1)
}

func TestNoop(t *testing.T) {
	sig, err := Noop{}.Inspect(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.False(t, sig.Flagged())
}

func TestChain(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.Background()
	failure := errors.New("vendor down")

	t.Run("merges signals", func(t *testing.T) {
		a, b := new(MockDetector), new(MockDetector)
		a.On("Inspect", ctx, r).Return(Signal{}, nil)
		b.On("Inspect", ctx, r).Return(Signal{Bot: true, Reason: "automated user agent"}, nil)

		sig, err := Chain{a, b}.Inspect(ctx, r)
		require.NoError(t, err)
		assert.True(t, sig.Bot)
		assert.Equal(t, "automated user agent", sig.Reason)
	})

	t.Run("keeps other signals when one fails", func(t *testing.T) {
		a, b := new(MockDetector), new(MockDetector)
		a.On("Inspect", ctx, r).Return(Signal{}, failure)
		b.On("Inspect", ctx, r).Return(Signal{Bot: true}, nil)

		sig, err := Chain{a, b}.Inspect(ctx, r)
		assert.ErrorIs(t, err, failure)
		assert.True(t, sig.Bot)
	})

	t.Run("stops after shield", func(t *testing.T) {
		a, b := new(MockDetector), new(MockDetector)
		a.On("Inspect", ctx, r).Return(Signal{Shielded: true, Reason: "sql injection"}, nil)

		sig, err := Chain{a, b}.Inspect(ctx, r)
		require.NoError(t, err)
		assert.True(t, sig.Shielded)
		b.AssertNotCalled(t, "Inspect", mock.Anything, mock.Anything)
	})

	t.Run("empty chain", func(t *testing.T) {
		sig, err := Chain{}.Inspect(ctx, r)
		require.NoError(t, err)
		assert.False(t, sig.Flagged())
	})
}
