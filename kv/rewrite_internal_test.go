package kv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAbortErr(t *testing.T) {
	// a cause-less abort is attributed to the caller
	err := abortErr(nil)
	require.ErrorIs(t, err, ErrRewriteAborted)
	require.ErrorIs(t, err, ErrAbortedByCaller)

	boom := errors.New("boom")
	err = abortErr(boom)
	require.ErrorIs(t, err, ErrRewriteAborted)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrAbortedByCaller)
}
