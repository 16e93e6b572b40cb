package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"deliverydash/pathdata"
)

func testMap() *Map {
	img := image.NewGray(image.Rect(0, 0, 100, 50))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return &Map{Width: 100, Height: 50, Image: img}
}

func byLayer(cmds []Command, l Layer) []Command {
	var out []Command
	for _, c := range cmds {
		if c.Layer == l {
			out = append(out, c)
		}
	}
	return out
}

func layerOrder(cmds []Command) []Layer {
	var order []Layer
	for _, c := range cmds {
		if len(order) == 0 || order[len(order)-1] != c.Layer {
			order = append(order, c.Layer)
		}
	}
	return order
}

func TestRenderWithoutMapIsBackgroundOnly(t *testing.T) {
	cmds := Render(State{
		Robot:  &Robot{Name: "r1", Position: &pathdata.Point{X: 1, Y: 1}},
		Target: &pathdata.Point{X: 2, Y: 2},
	})
	if len(cmds) != 1 {
		t.Fatalf("len(cmds) = %d, want 1", len(cmds))
	}
	if cmds[0].Layer != LayerBackground || cmds[0].W != 1200 || cmds[0].H != 800 {
		t.Errorf("background = %+v", cmds[0])
	}
}

func TestRenderLayerOrder(t *testing.T) {
	cmds := Render(State{
		Robot:      &Robot{Name: "r1", Position: &pathdata.Point{X: 10, Y: 10}},
		Trajectory: []pathdata.Point{{X: 0, Y: 0}, {X: 5, Y: 5}},
		Map:        testMap(),
		Surface:    DefaultSize,
	})
	want := []Layer{LayerBackground, LayerMap, LayerGrid, LayerAxes, LayerRobot, LayerTrajectory, LayerInfo}
	if diff := cmp.Diff(want, layerOrder(cmds)); diff != "" {
		t.Errorf("layer order mismatch (-want +got):\n%s", diff)
	}
}

func TestTargetSuppressedByTrajectory(t *testing.T) {
	target := &pathdata.Point{X: 40, Y: 20}
	with := Render(State{Map: testMap(), Target: target, Trajectory: []pathdata.Point{{X: 1, Y: 1}}})
	if n := len(byLayer(with, LayerTarget)); n != 0 {
		t.Errorf("target commands with trajectory = %d, want 0", n)
	}
	without := Render(State{Map: testMap(), Target: target})
	if n := len(byLayer(without, LayerTarget)); n == 0 {
		t.Error("target should be drawn when trajectory is empty")
	}
}

func TestAbsentRobotPositionSuppressesMarker(t *testing.T) {
	cmds := Render(State{Map: testMap(), Robot: &Robot{Name: "r1"}})
	if n := len(byLayer(cmds, LayerRobot)); n != 0 {
		t.Errorf("robot commands with nil position = %d, want 0", n)
	}
	nan := Render(State{Map: testMap(), Robot: &Robot{Name: "r1", Position: &pathdata.Point{X: math.NaN(), Y: 1}}})
	if n := len(byLayer(nan, LayerRobot)); n != 0 {
		t.Errorf("robot commands with NaN position = %d, want 0", n)
	}
}

func TestRobotAtOriginIsDrawn(t *testing.T) {
	cmds := byLayer(Render(State{Map: testMap(), Robot: &Robot{Name: "r1", Position: &pathdata.Point{}}}), LayerRobot)
	if len(cmds) == 0 {
		t.Fatal("robot at (0,0) should be drawn")
	}
	if math.Abs(cmds[0].X-90) > 1e-9 || math.Abs(cmds[0].Y-655) > 1e-9 {
		t.Errorf("robot disc at (%v, %v), want (90, 655)", cmds[0].X, cmds[0].Y)
	}
	var readout string
	for _, c := range cmds {
		if c.Op == OpText && c.Y == cmds[0].Y+50 {
			readout = c.Text
		}
	}
	if readout != "X:0.0 Y:0.0" {
		t.Errorf("readout = %q, want %q", readout, "X:0.0 Y:0.0")
	}
}

func TestTrajectoryMarkers(t *testing.T) {
	cmds := byLayer(Render(State{
		Map:        testMap(),
		Trajectory: []pathdata.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}},
	}), LayerTrajectory)

	var fills []Command
	var captions []string
	for _, c := range cmds {
		switch {
		case c.Op == OpFillCircle:
			fills = append(fills, c)
		case c.Op == OpText && c.Font.Size >= 12:
			captions = append(captions, c.Text)
		}
	}
	if len(fills) != 3 {
		t.Fatalf("fills = %d, want 3", len(fills))
	}
	if fills[0].Color != colorStart || fills[0].R != 10 {
		t.Errorf("start marker = %v r=%v", fills[0].Color, fills[0].R)
	}
	if fills[1].Color != colorInterior || fills[1].R != 6 {
		t.Errorf("interior marker = %v r=%v", fills[1].Color, fills[1].R)
	}
	if fills[2].Color != colorEnd || fills[2].R != 10 {
		t.Errorf("end marker = %v r=%v", fills[2].Color, fills[2].R)
	}
	want := []string{"TRAJECTORY", "Start: (0.0, 0.0) → End: (2.0, 2.0)"}
	if diff := cmp.Diff(want, captions); diff != "" {
		t.Errorf("captions mismatch (-want +got):\n%s", diff)
	}
}

func TestTrajectoryNumbersFirstTwenty(t *testing.T) {
	pts := make([]pathdata.Point, 25)
	for i := range pts {
		pts[i] = pathdata.Point{X: float64(i), Y: 1}
	}
	numbers := 0
	for _, c := range byLayer(Render(State{Map: testMap(), Trajectory: pts}), LayerTrajectory) {
		if c.Op == OpText && c.Font.Size == 10 {
			numbers++
		}
	}
	if numbers != numberedLimit {
		t.Errorf("numbered points = %d, want %d", numbers, numberedLimit)
	}
}

func TestSinglePointTrajectoryHasNoCaption(t *testing.T) {
	cmds := byLayer(Render(State{Map: testMap(), Trajectory: []pathdata.Point{{X: 3, Y: 3}}}), LayerTrajectory)
	for _, c := range cmds {
		if c.Text == "TRAJECTORY" {
			t.Error("single-point trajectory should not be captioned")
		}
		if c.Op == OpFillCircle && c.Color != colorStart {
			t.Errorf("single point color = %v, want start", c.Color)
		}
	}
}

func TestRoles(t *testing.T) {
	tests := []struct {
		n    int
		want []Role
	}{
		{0, []Role{}},
		{1, []Role{RoleStart}},
		{2, []Role{RoleStart, RoleEnd}},
		{4, []Role{RoleStart, RoleInterior, RoleInterior, RoleEnd}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Roles(tt.n)); diff != "" {
			t.Errorf("Roles(%d) mismatch (-want +got):\n%s", tt.n, diff)
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	s := State{
		Map:        testMap(),
		Robot:      &Robot{Name: "r1", Position: &pathdata.Point{X: 3, Y: 4}},
		Trajectory: []pathdata.Point{{X: 0, Y: 0}, {X: 9, Y: 9}},
	}
	a, b := Render(s), Render(s)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("Render not deterministic:\n%s", diff)
	}
}

func TestRasterizeBackgroundAndRobot(t *testing.T) {
	s := State{
		Map:     testMap(),
		Robot:   &Robot{Name: "r1", Position: &pathdata.Point{X: 50, Y: 25}},
		Surface: Size{Width: 300, Height: 200},
	}
	img := Rasterize(Render(s), s.Surface, s.Map.Image, Options{Supersample: 1})
	if img.Bounds().Dx() != 300 || img.Bounds().Dy() != 200 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	if got := img.RGBAAt(1, 1); got != (color.RGBA{0x0a, 0x19, 0x29, 0xff}) {
		t.Errorf("corner pixel = %v, want background", got)
	}
	// red center dot of the robot marker at the map center
	if got := img.RGBAAt(150, 100); got.R != 0xff || got.G != 0 || got.B != 0 {
		t.Errorf("robot center pixel = %v, want red", got)
	}
}

func TestFramePNG(t *testing.T) {
	data, err := Frame(State{Map: testMap(), Surface: Size{Width: 120, Height: 80}}, DefaultOptions())
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 120 || img.Bounds().Dy() != 80 {
		t.Errorf("bounds = %v, want 120x80", img.Bounds())
	}
}
