package prof

import (
	"context"
	"strings"
	"testing"

	"github.com/keithlinneman/listwebserver/internal/log"
)

func TestStart_Disabled(t *testing.T) {
	stop, err := Start(context.Background(), Options{
		Enabled:              false,
		BasicAuthPassword:    "secret",
		MutexProfileFraction: 999,
	})
	if err != nil {
		t.Fatalf("disabled should never error: %v", err)
	}
	stop()
	stop()
}

func TestStart_EnabledWithoutAddress(t *testing.T) {
	ctx := log.WithContext(context.Background(), log.Nop())
	stop, err := Start(ctx, Options{Enabled: true, AppName: "list.web"})

	if err == nil || !strings.Contains(err.Error(), "invalid server address") {
		t.Fatalf("err = %v, want invalid server address", err)
	}
	if stop == nil {
		t.Fatal("stop must be non-nil on error")
	}
	stop()
}

func TestStart_UnreachableServerStopIsSafe(t *testing.T) {
	// pyroscope connects lazily, so err may be nil here
	stop, _ := Start(context.Background(), Options{
		Enabled:       true,
		ServerAddress: "http://127.0.0.1:1",
		AppName:       "list.web",
	})
	if stop == nil {
		t.Fatal("stop must be non-nil")
	}
	stop()
}

func TestPyroLogger(t *testing.T) {
	l := pyroLogger{ctx: context.Background(), L: log.Nop()}
	l.Infof("upload %d", 1)
	l.Debugf("ignored")
	l.Errorf("upload failed: %s", "boom")
}
