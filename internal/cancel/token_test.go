package cancel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Token_InitiallyNotCancelled(t *testing.T) {
	t.Parallel()

	tok := New()
	require.False(t, tok.Cancelled())
}

func Test_Token_CancelIsObservedAfterCall(t *testing.T) {
	t.Parallel()

	tok := New()
	tok.Cancel()

	require.True(t, tok.Cancelled())
}

func Test_Token_CancelIsIdempotentAndConcurrencySafe(t *testing.T) {
	t.Parallel()

	tok := New()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok.Cancel()
		}()
	}
	wg.Wait()

	require.True(t, tok.Cancelled())
}
