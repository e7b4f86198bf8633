package version_test

import (
	"testing"

	"github.com/keithlinneman/listwebserver/internal/version"
)

func TestGet_VCSDirtyFromLdflags(t *testing.T) {
	old := version.VCSDirty
	t.Cleanup(func() { version.VCSDirty = old })

	for _, want := range []bool{true, false} {
		v := want
		version.VCSDirty = &v
		info := version.Get()
		if info.VCSDirty == nil || *info.VCSDirty != want {
			t.Fatalf("VCSDirty = %v, want %v", info.VCSDirty, want)
		}
	}
}

func TestGet_LinkedFieldsPassThrough(t *testing.T) {
	oldV, oldB := version.Version, version.BuildId
	t.Cleanup(func() { version.Version, version.BuildId = oldV, oldB })

	version.Version = "v1.2.3"
	version.BuildId = "build-42"
	info := version.Get()
	if info.Version != "v1.2.3" || info.BuildId != "build-42" {
		t.Fatalf("info = %+v", info)
	}
	if info.GoVersion == "" {
		t.Fatal("GoVersion empty")
	}
}

func TestInfo_String(t *testing.T) {
	dirty := true
	tests := []struct {
		info version.Info
		want string
	}{
		{version.Info{Version: "dev", Commit: "none"}, "dev"},
		{version.Info{Version: "v1.0.0", Commit: "0123456789abcdef"}, "v1.0.0 (0123456789ab)"},
		{version.Info{Version: "v1.0.0", Commit: "abc", VCSDirty: &dirty}, "v1.0.0 (abc-dirty)"},
	}
	for _, tt := range tests {
		if got := tt.info.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
