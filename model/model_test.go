package model

import "testing"

func TestImageRefs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"image answer", `{"images":["/uploads/a.jpg","/uploads/b.png"]}`, []string{"/uploads/a.jpg", "/uploads/b.png"}},
		{"empty list", `{"images":[]}`, nil},
		{"text answer", `{"text":"hello"}`, nil},
		{"not json", `garbage`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ImageRefs([]byte(tt.content))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestImageFilename(t *testing.T) {
	if got := ImageFilename("/uploads/20250310_abc.jpg"); got != "20250310_abc.jpg" {
		t.Fatalf("got %q", got)
	}
	// bare names pass through
	if got := ImageFilename("20250310_abc.jpg"); got != "20250310_abc.jpg" {
		t.Fatalf("got %q", got)
	}
}
