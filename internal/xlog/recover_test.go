package xlog

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_RecoverGoPanic_RecoversAndLogs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	func() {
		defer RecoverGoPanic("test", logger)
		panic("boom")
	}()

	require.Contains(t, buf.String(), "panic recovered")
	require.Contains(t, buf.String(), "boom")
}

func Test_RecoverGoPanic_NoPanicIsNoop(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	func() {
		defer RecoverGoPanic("test", logger)
	}()

	require.Empty(t, buf.String())
}
