package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/iksnae/chatrelay/testutil"
)

func TestJSONExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONExporter{}).Export(testutil.SampleTranscript(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var got struct {
		Session struct {
			ID     int64  `json:"id"`
			Title  string `json:"title"`
			Pinned bool   `json:"pinned"`
		} `json:"session"`
		Messages []struct {
			Role     string `json:"role"`
			Sequence int64  `json:"sequence"`
			Content  string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Export() produced invalid JSON: %v", err)
	}

	if got.Session.ID != 12 || got.Session.Title != "Trip to Busan" || !got.Session.Pinned {
		t.Errorf("Export() session = %+v", got.Session)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("Export() messages = %d, want 3", len(got.Messages))
	}
	if got.Messages[1].Role != "TOOL" || got.Messages[1].Sequence != 2 {
		t.Errorf("Export() message[1] = %+v", got.Messages[1])
	}
	if strings.Contains(buf.String(), "anon_token") || strings.Contains(buf.String(), "\"42\"") {
		t.Errorf("Export() leaked the owner: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "\n  \"session\"") {
		t.Errorf("Export() output is not indented")
	}
}
