//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/livescribe/internal/recognizer"
)

func TestListDevicesIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	devices, err := ListDevices(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, devices)
}

func TestEngineCapturesIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	selection, err := SelectDevice(ctx, "default", "default")
	require.NoError(t, err)

	engine := NewEngine(selection.Device)
	captured := make(chan recognizer.Buffer, 16)
	require.NoError(t, engine.InputNode().InstallTap(0, 1024, CaptureFormat, func(buf recognizer.Buffer) {
		select {
		case captured <- buf:
		default:
		}
	}))
	require.NoError(t, engine.Start())
	defer engine.Stop()

	select {
	case buf := <-captured:
		require.NotEmpty(t, buf.PCM)
	case <-ctx.Done():
		t.Fatal("no audio captured")
	}
}
