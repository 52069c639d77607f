package cleanup

import "testing"

func TestFreedHuman(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 bytes"},
		{512, "512 bytes"},
		{2048, "2.00 KB"},
		{5 << 20, "5.00 MB"},
	}
	for _, tt := range tests {
		if got := (Stats{BytesFreed: tt.bytes}).FreedHuman(); got != tt.want {
			t.Errorf("FreedHuman(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
