/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package registry

import (
	"encoding/json"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"chainguard.dev/publishflow/publish"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const plugins = `[
  {
    "project_link": "nonebot-plugin-treehelp",
    "module_name": "nonebot_plugin_treehelp",
    "author": "he0119",
    "tags": [],
    "is_official": false
  }
]
`

type memFiles map[string][]byte

func (m memFiles) ReadFile(path string) ([]byte, error) {
	b, ok := m[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return b, nil
}

func (m memFiles) WriteFile(path string, data []byte) error {
	m[path] = data
	return nil
}

func entry(module, link string) *publish.Data {
	d := publish.NewData()
	d.Set("module_name", module)
	d.Set("project_link", link)
	d.Set("author", "作者")
	d.Set("author_id", int64(1))
	d.Set("tags", []publish.Tag{{Label: "a&b", Color: "#ffffff"}})
	d.Set("is_official", false)
	return d
}

func TestLoadEncodeStable(t *testing.T) {
	s, err := Load(strings.NewReader(plugins))
	require.NoError(t, err)

	got, err := s.Bytes()
	require.NoError(t, err)
	if diff := cmp.Diff(plugins, string(got)); diff != "" {
		t.Errorf("re-encoding changed the file (-want +got):\n%s", diff)
	}
}

func TestAppend(t *testing.T) {
	s, err := Load(strings.NewReader(plugins))
	require.NoError(t, err)
	require.NoError(t, s.Append(entry("module_name", "project_link")))

	got, err := s.Bytes()
	require.NoError(t, err)
	want := plugins[:len(plugins)-3] + `,
  {
    "module_name": "module_name",
    "project_link": "project_link",
    "author": "作者",
    "author_id": 1,
    "tags": [
      {
        "label": "a&b",
        "color": "#ffffff"
      }
    ],
    "is_official": false
  }
]
`
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("Append() mismatch (-want +got):\n%s", diff)
	}

	last, err := s.Last()
	require.NoError(t, err)
	if last.String("project_link") != "project_link" {
		t.Errorf("Last() = %v, want the appended entry", last)
	}
}

func TestRoundTrip(t *testing.T) {
	files := memFiles{"assets/plugins.json": []byte(plugins)}
	paths := DefaultPaths()

	for _, name := range []string{"a", "b", "c"} {
		s, err := Read(files, paths, publish.KindPlugin)
		require.NoError(t, err)
		before, err := s.Bytes()
		require.NoError(t, err)

		require.NoError(t, s.Append(entry("module_"+name, "project_"+name)))
		require.NoError(t, Write(files, paths, publish.KindPlugin, s))

		after := string(files["assets/plugins.json"])
		prefix := string(before[:len(before)-3])
		if !strings.HasPrefix(after, prefix) {
			t.Fatalf("appending %s rewrote earlier entries:\n%s", name, after)
		}
	}

	s, err := Read(files, paths, publish.KindPlugin)
	require.NoError(t, err)
	entries, err := s.Entries()
	require.NoError(t, err)

	var links []string
	for _, e := range entries {
		links = append(links, e.String("project_link"))
	}
	want := []string{"nonebot-plugin-treehelp", "project_a", "project_b", "project_c"}
	if diff := cmp.Diff(want, links); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestRemove(t *testing.T) {
	s, err := Load(strings.NewReader(plugins))
	require.NoError(t, err)
	require.NoError(t, s.Append(entry("module_name", "project_link")))

	removed, ok, err := s.Remove(func(e publish.Entry) bool {
		return e.String("project_link") == "nonebot-plugin-treehelp"
	})
	require.NoError(t, err)
	require.True(t, ok)
	if removed.String("module_name") != "nonebot_plugin_treehelp" {
		t.Errorf("Remove() returned %v", removed)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}

	_, ok, err = s.Remove(func(publish.Entry) bool { return false })
	require.NoError(t, err)
	if ok {
		t.Error("Remove() matched nothing but reported true")
	}
}

func TestLoadEmpty(t *testing.T) {
	for _, in := range []string{"", "  \n", "[]", "null"} {
		s, err := Load(strings.NewReader(in))
		require.NoError(t, err)
		entries, err := s.Entries()
		require.NoError(t, err)
		if entries == nil || len(entries) != 0 {
			t.Errorf("Load(%q).Entries() = %#v, want empty non-nil", in, entries)
		}
		if _, err := s.Last(); !errors.Is(err, ErrEmpty) {
			t.Errorf("Last() error = %v, want ErrEmpty", err)
		}
	}
}

func TestReadMissing(t *testing.T) {
	_, err := Read(memFiles{}, DefaultPaths(), publish.KindBot)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Read() error = %v, want fs.ErrNotExist", err)
	}
}

func TestSchema(t *testing.T) {
	tests := []struct {
		kind publish.Kind
		want []string
	}{
		{publish.KindBot, []string{"name", "desc", "author", "author_id", "homepage", "tags", "is_official"}},
		{publish.KindAdapter, []string{"module_name", "project_link", "name", "desc", "author", "author_id", "homepage", "tags", "is_official"}},
		{publish.KindPlugin, []string{"module_name", "project_link", "author", "author_id", "tags", "is_official"}},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			s := Schema(tt.kind)
			if diff := cmp.Diff(tt.want, s.Required); diff != "" {
				t.Errorf("Required mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRawEntries(t *testing.T) {
	src, err := Load(strings.NewReader(`[{"z": 1, "a": "first"}, {"z": 2, "a": "last"}]`))
	require.NoError(t, err)
	raw, err := src.LastRaw()
	require.NoError(t, err)

	dst, err := Load(strings.NewReader("[]\n"))
	require.NoError(t, err)
	require.NoError(t, dst.AppendRaw(raw))

	got, err := dst.Bytes()
	require.NoError(t, err)
	want := "[\n  {\n    \"z\": 2,\n    \"a\": \"last\"\n  }\n]\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("AppendRaw() mismatch (-want +got):\n%s", diff)
	}

	if err := dst.AppendRaw(json.RawMessage(`[1]`)); err == nil {
		t.Error("AppendRaw() accepted a non-object entry")
	}

	empty, err := Load(strings.NewReader("[]"))
	require.NoError(t, err)
	if _, err := empty.LastRaw(); !errors.Is(err, ErrEmpty) {
		t.Errorf("LastRaw() error = %v, want %v", err, ErrEmpty)
	}
}
