package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var out bytes.Buffer
	defer SetLevel(GetLevel())
	SetOutput(&out)
	defer SetOutput(&bytes.Buffer{})

	SetLevel(LevelWarn)
	Debugf("fd[%d] hidden", 3)
	Info("hidden too")
	require.Zero(t, out.Len())

	Warnf("event[%d] not in queue", 7)
	require.Contains(t, out.String(), "event[7] not in queue")

	out.Reset()
	SetLevel(LevelDebug)
	Debug("now ", "visible")
	require.Contains(t, out.String(), "now visible")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		" error ": LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestWith(t *testing.T) {
	var out bytes.Buffer
	SetOutput(&out)
	defer SetOutput(&bytes.Buffer{})

	l := With("fd", 9)
	l.Error().Msg("boom")
	require.Contains(t, out.String(), "fd")
	require.Contains(t, out.String(), "boom")
}
