package xlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Log_NoteRecordsEntry(t *testing.T) {
	t.Parallel()

	l := New()
	l.Note("hello")

	entries, ch := l.Snapshot()
	defer l.Unsubscribe(ch)

	require.Len(t, entries, 1)
	require.Equal(t, Note, entries[0].Kind)
	require.Equal(t, "hello", entries[0].Msg)
}

func Test_Log_BufferIsBoundedAndFIFO(t *testing.T) {
	t.Parallel()

	l := New()
	for i := range bufferCap + 10 {
		l.Note(string(rune('a' + i%26)))
	}

	entries, ch := l.Snapshot()
	defer l.Unsubscribe(ch)

	require.Len(t, entries, bufferCap)
}

func Test_Log_SnapshotBeforeSubscribe_NoEventMissedOrDuplicated(t *testing.T) {
	t.Parallel()

	l := New()
	l.Note("before")

	entries, ch := l.Snapshot()
	defer l.Unsubscribe(ch)

	require.Len(t, entries, 1)

	l.Note("after")

	select {
	case e := <-ch:
		require.Equal(t, "after", e.Msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for post-subscription entry")
	}
}

func Test_Log_UnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	l := New()

	_, ch := l.Snapshot()
	l.Unsubscribe(ch)

	l.Note("should not be delivered")

	select {
	case <-ch:
		t.Fatal("received entry after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}
