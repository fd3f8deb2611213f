/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package plugintest

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{{
		name: "plain",
		in:   "test",
		want: "test",
	}, {
		name: "colored package info",
		in:   "插件 nonebot-plugin-status 的信息如下： \x1b[34mname\x1b[39m         : \x1b[36mnonebot-plugin-status\x1b[39m",
		want: "插件 nonebot-plugin-status 的信息如下： name         : nonebot-plugin-status",
	}, {
		name: "empty",
		in:   "",
		want: "",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripANSI(tt.in); got != tt.want {
				t.Errorf("StripANSI() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		name        string
		output      string
		projectLink string
		want        string
	}{{
		name:        "package listing",
		output:      " \x1b[34mname\x1b[39m         : nonebot-plugin-status\n \x1b[34mversion\x1b[39m      : \x1b[1m0.7.1\x1b[0m\n",
		projectLink: "nonebot-plugin-status",
		want:        "0.7.1",
	}, {
		name:        "version solving failed",
		output:      "Because nonebot-plugin-test depends on nonebot-plugin-foo (^1.2.0), version solving failed.",
		projectLink: "nonebot_plugin_foo",
		want:        "1.2.0",
	}, {
		name:        "not semver",
		output:      "version      : banana",
		projectLink: "nonebot-plugin-status",
	}, {
		name:        "absent",
		output:      "nothing useful here",
		projectLink: "nonebot-plugin-status",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractVersion(tt.output, tt.projectLink)
			if tt.want == "" {
				if got != nil {
					t.Errorf("ExtractVersion() = %v, want nil", got)
				}
				return
			}
			require.NotNil(t, got)
			if got.String() != tt.want {
				t.Errorf("ExtractVersion() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	got, err := ParseConfig("TEST_CONFIG=1\n# comment\nOTHER=\"two words\"\n")
	require.NoError(t, err)

	want := map[string]string{"TEST_CONFIG": "1", "OTHER": "two words"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseConfig() mismatch (-want +got):\n%s", diff)
	}

	empty, err := ParseConfig("  \n")
	require.NoError(t, err)
	if len(empty) != 0 {
		t.Errorf("ParseConfig(blank) = %v, want empty", empty)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name         string
		in           string
		wantLoad     bool
		wantMetadata bool
		wantName     string
	}{{
		name:         "loaded with metadata",
		in:           `{"metadata":{"name":"帮助","description":"获取插件帮助信息","usage":"","type":"application","homepage":"https://nonebot.dev/","supported_adapters":null},"outputs":["ok"],"load":true,"run":true,"version":"0.3.0","config":""}`,
		wantLoad:     true,
		wantMetadata: true,
		wantName:     "帮助",
	}, {
		name: "empty metadata",
		in:   `{"metadata":{},"outputs":["boom"],"load":false,"run":true,"version":null,"config":null}`,
	}, {
		name: "null metadata",
		in:   `{"metadata":null,"outputs":[],"load":false,"run":false}`,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(strings.NewReader(tt.in))
			require.NoError(t, err)

			if got.Load != tt.wantLoad {
				t.Errorf("Load = %v, want %v", got.Load, tt.wantLoad)
			}
			if (got.Metadata != nil) != tt.wantMetadata {
				t.Fatalf("Metadata = %+v, want present=%v", got.Metadata, tt.wantMetadata)
			}
			if tt.wantMetadata && got.Metadata.Name != tt.wantName {
				t.Errorf("Metadata.Name = %q, want %q", got.Metadata.Name, tt.wantName)
			}
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, err := Decode(strings.NewReader("{")); err == nil {
		t.Error("Decode() expected error for truncated input")
	}
}

func TestOutput(t *testing.T) {
	r := &Result{Outputs: []string{"\x1b[31mfailed\x1b[0m", "line two"}}
	if got, want := r.Output(), "failed\nline two"; got != want {
		t.Errorf("Output() = %q, want %q", got, want)
	}

	var nilResult *Result
	if got := nilResult.Output(); got != "" {
		t.Errorf("nil Output() = %q, want empty", got)
	}

	if got := Failed("timed out").Load; got {
		t.Error("Failed().Load = true, want false")
	}
}

func TestInstalledVersion(t *testing.T) {
	reported := "1.0.0"
	empty := ""

	tests := []struct {
		name string
		res  *Result
		want string
	}{{
		name: "reported by the sandbox",
		res:  &Result{Version: &reported, Outputs: []string{"version      : 0.7.1"}},
		want: "1.0.0",
	}, {
		name: "found in the package listing",
		res:  &Result{Version: &empty, Outputs: []string{"name : nonebot-plugin-status", "version      : 0.7.1"}},
		want: "0.7.1",
	}, {
		name: "found in the resolver failure",
		res:  &Result{Outputs: []string{"Because nonebot-plugin-test depends on nonebot-plugin-foo (^1.2.0), version solving failed."}},
		want: "1.2.0",
	}, {
		name: "unknown",
		res:  &Result{Outputs: []string{"ModuleNotFoundError"}},
	}, {
		name: "nil result",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.InstalledVersion("nonebot_plugin_foo"); got != tt.want {
				t.Errorf("InstalledVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}
