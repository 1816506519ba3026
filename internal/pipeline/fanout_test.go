package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFanOut(t *testing.T) {
	got := FanOut([]string{"Turn # 1", "Turn # 2", "Turn # 3"}, uploader)
	want := []WorkItem{
		{Index: 0, Text: "Turn # 1", Attempt: 1, UploadingPlayer: uploader},
		{Index: 1, Text: "Turn # 2", Attempt: 1, UploadingPlayer: uploader},
		{Index: 2, Text: "Turn # 3", Attempt: 1, UploadingPlayer: uploader},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FanOut mismatch (-want +got):\n%s", diff)
	}

	if got := FanOut(nil, uploader); len(got) != 0 {
		t.Errorf("FanOut(nil) = %v, want empty", got)
	}
}
