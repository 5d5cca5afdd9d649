package queryplan

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/codeGROOVE-dev/channelist/record"
)

func TestBuildQueries(t *testing.T) {
	tests := []struct {
		name string
		rec  record.Record
		want []Query
	}{
		{
			name: "all sources distinct",
			rec: record.Record{
				Username:    "gamer123",
				ProfileName: "Epic Gamer",
				URL:         "https://twitter.com/gamer_real",
			},
			want: []Query{
				{Text: "gamer123", Source: SourceUsername, Priority: 1},
				{Text: "Epic Gamer", Source: SourceProfileName, Priority: 2},
				{Text: "gamer123 Epic Gamer", Source: SourceCombined, Priority: 3},
				{Text: "gamer_real", Source: SourceURLName, Priority: 4},
			},
		},
		{
			name: "profile name duplicates username",
			rec: record.Record{
				Username:    "gamer123",
				ProfileName: "Gamer123",
			},
			want: []Query{
				{Text: "gamer123", Source: SourceUsername, Priority: 1},
				{Text: "gamer123 Gamer123", Source: SourceCombined, Priority: 2},
			},
		},
		{
			name: "username only",
			rec:  record.Record{Username: "solo"},
			want: []Query{
				{Text: "solo", Source: SourceUsername, Priority: 1},
			},
		},
		{
			name: "url name duplicates username",
			rec: record.Record{
				Username: "gamer123",
				URL:      "https://instagram.com/@gamer123",
			},
			want: []Query{
				{Text: "gamer123", Source: SourceUsername, Priority: 1},
			},
		},
		{
			name: "empty record",
			rec:  record.Record{},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildQueries(tt.rec)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("BuildQueries mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReferenceNames(t *testing.T) {
	rec := record.Record{
		Username:    "kirstnicolexo",
		ProfileName: "Kirstie Nicole",
		URL:         "https://twitter.com/kirstnicolexo/status/1234",
	}
	got := ReferenceNames(rec)
	want := []string{"kirstnicolexo", "Kirstie Nicole"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReferenceNames mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractURLName(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"plain profile", "https://twitter.com/someuser", "someuser"},
		{"status link keeps username", "twitter.com/profile_name/status/123", "profile_name"},
		{"at-prefixed handle", "https://www.instagram.com/@cool.user/", "cool.user"},
		{"root page", "https://www.tumblr.com/", ""},
		{"numeric id only", "https://vk.com/123456", ""},
		{"stop word section", "https://x.com/home", ""},
		{"intent link", "https://twitter.com/intent/follow", "follow"},
		{"schemeless", "instagram.com/someuser", "someuser"},
		{"empty", "", ""},
		{"garbage", "://///", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractURLName(tt.url); got != tt.want {
				t.Errorf("ExtractURLName(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}
