package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/iksnae/chatrelay/internal"
	"github.com/iksnae/chatrelay/testutil"
)

func TestMarkdownExporter_Export(t *testing.T) {
	unpinned := testutil.SampleTranscript()
	unpinned.Session.Pinned = false
	unpinned.Messages = nil

	tests := []struct {
		name    string
		t       *internal.Transcript
		want    []string
		notWant []string
	}{
		{
			name: "full transcript",
			t:    testutil.SampleTranscript(),
			want: []string{
				"# Trip to Busan",
				"**Session:** 12",
				"**Created:** 2025-02-03T04:05:06Z",
				"**Pinned:** yes",
				"**Messages:** 3",
				"**You:**",
				"What time is it in Busan?",
				"**Tool:**",
				"_Tool output: 29 characters_",
				"**Assistant:**",
				"It is \\*\\*1:05 PM\\*\\* in Busan.",
			},
			notWant: []string{"KST"},
		},
		{
			name:    "empty transcript",
			t:       unpinned,
			want:    []string{"# Trip to Busan", "**Messages:** 0"},
			notWant: []string{"**Pinned:**", "**You:**"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (&MarkdownExporter{}).Export(tt.t, &buf); err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			out := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("Export() output missing %q\n%s", want, out)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(out, nw) {
					t.Errorf("Export() output unexpectedly contains %q", nw)
				}
			}
		})
	}
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"bold", "**bold**", "\\*\\*bold\\*\\*"},
		{"underline", "__x__", "\\_\\_x\\_\\_"},
		{"code block untouched", "```\n**keep**\n```\n**esc**", "```\n**keep**\n```\n\\*\\*esc\\*\\*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeMarkdown(tt.in); got != tt.want {
				t.Errorf("escapeMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
