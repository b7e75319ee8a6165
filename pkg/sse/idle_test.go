package sse

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdleReaderCancelsStalledStream(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ir := WithIdleTimeout(pr, 20*time.Millisecond, func() {
		pr.CloseWithError(context.Canceled)
	})
	defer ir.Stop()

	_, err := ir.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrIdleTimeout)
}

func TestIdleReaderPassesDataThrough(t *testing.T) {
	cancelled := false
	ir := WithIdleTimeout(strings.NewReader("hello"), time.Second, func() { cancelled = true })
	defer ir.Stop()

	data, err := io.ReadAll(ir)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.False(t, cancelled)
}

func TestIdleReaderZeroTimeoutDisabled(t *testing.T) {
	ir := WithIdleTimeout(strings.NewReader("x"), 0, func() { t.Fatal("cancel must not be called") })
	data, err := io.ReadAll(ir)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
	ir.Stop()
}
