package logger

import (
	"bytes"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestStringToLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		want    zapcore.Level
		wantErr bool
	}{
		{name: "named debug", value: "debug", want: zapcore.DebugLevel},
		{name: "named ignoring case", value: "ERROR", want: zapcore.ErrorLevel},
		{name: "numeric verbosity", value: "3", want: zapcore.Level(-3)},
		{name: "zero is invalid", value: "0", want: zapcore.InfoLevel, wantErr: true},
		{name: "garbage", value: "loud", want: zapcore.InfoLevel, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := StringToLevel(tt.value, zapcore.InfoLevel)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestStatusAndErrorsAreSplit(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	log := NewWithWriters("test", &stdout, &stderr)

	log.Info("connection started")
	log.Error(nil, "connection failed")
	log.V(1).Info("hidden at default level")
	log.Flush()

	require.Contains(t, stdout.String(), "connection started")
	require.NotContains(t, stdout.String(), "connection failed")
	require.NotContains(t, stdout.String(), "hidden at default level")
	require.Contains(t, stderr.String(), "connection failed")
}

func TestLevelFlagEnablesVerboseOutput(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	log := NewWithWriters("test", &stdout, &stderr)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	log.AddLevelFlag(fs)
	require.NoError(t, fs.Parse([]string{"-v=debug"}))

	log.V(1).Info("now visible")
	log.Flush()

	require.Contains(t, stdout.String(), "now visible")
}
