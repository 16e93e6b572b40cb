package pathdata

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []Point
	}{
		{"empty", "", []Point{}},
		{"blank entries", " ; ;", []Point{}},
		{"single", "x:1,y:2", []Point{{1, 2}}},
		{"drops incomplete", "x:1,y:2;;x:3", []Point{{1, 2}}},
		{"planner extras", "x:0,y:0,v:0.5,th:1.57,de:0,a:0,w:0;x:1.5,y:2.25,v:0.5", []Point{{0, 0}, {1.5, 2.25}}},
		{"whitespace", " x : 1 , y : 2 ; x:3,y:4 ", []Point{{1, 2}, {3, 4}}},
		{"non numeric", "x:abc,y:1;x:2,y:3", []Point{{2, 3}}},
		{"non finite", "x:NaN,y:1;x:Inf,y:2;x:4,y:5", []Point{{4, 5}}},
		{"later key wins", "x:1,y:2,x:7", []Point{{7, 2}}},
		{"negative", "x:-1.5,y:-2", []Point{{-1.5, -2}}},
		{"missing colon", "x1,y:2;x:1,y:1", []Point{{1, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.raw)
			if got == nil {
				t.Fatal("Decode returned nil slice")
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	points := []Point{{0, 0}, {1.1, 2.2}, {-3.333333333, 1e-9}, {1234.5678, 99}}
	got := Decode(Encode(points))
	if diff := cmp.Diff(points, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeFormat(t *testing.T) {
	got := Encode([]Point{{1, 2}, {3.5, 4}})
	want := "x:1,y:2;x:3.5,y:4"
	if got != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
	if Encode(nil) != "" {
		t.Errorf("Encode(nil) = %q, want empty", Encode(nil))
	}
}

func TestSummarize(t *testing.T) {
	var pts []Point
	for i := 0; i < 8; i++ {
		pts = append(pts, Point{X: float64(i), Y: float64(i * 2)})
	}
	s := Summarize(Encode(pts))
	if s.Count != 8 {
		t.Errorf("Count = %d, want 8", s.Count)
	}
	if len(s.Preview) != 5 {
		t.Errorf("len(Preview) = %d, want 5", len(s.Preview))
	}
	if s.First == nil || *s.First != (Point{0, 0}) {
		t.Errorf("First = %v, want {0 0}", s.First)
	}
	if s.Last == nil || *s.Last != (Point{7, 14}) {
		t.Errorf("Last = %v, want {7 14}", s.Last)
	}
}

func TestSummarizeTruncatesRaw(t *testing.T) {
	raw := strings.Repeat("x:1,y:1;", 50)
	s := Summarize(raw)
	if len(s.RawPreview) != rawPreviewLen+3 {
		t.Errorf("len(RawPreview) = %d, want %d", len(s.RawPreview), rawPreviewLen+3)
	}
	empty := Summarize("")
	if empty.First != nil || empty.Last != nil {
		t.Error("empty summary should have no endpoints")
	}
}
