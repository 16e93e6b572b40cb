// Package render turns a dashboard snapshot into an ordered list of draw
// commands and replays them onto a raster.
//
// Render is pure: every frame is a full redraw from State, so a stale
// layer can never survive a state change.
package render

import (
	"fmt"
	"image/color"
	"math"
	"strconv"

	"deliverydash/pathdata"
	"deliverydash/viewport"
)

const (
	gridStep      = 10
	gridLabelStep = 20
	numberedLimit = 20
)

var (
	colorBackground = color.NRGBA{0x0a, 0x19, 0x29, 0xff}
	colorMapBorder  = color.NRGBA{0x00, 0xff, 0x00, 0xff}
	colorGrid       = color.NRGBA{0xff, 0xff, 0xff, 0x33}
	colorWhite      = color.NRGBA{0xff, 0xff, 0xff, 0xff}
	colorBlack      = color.NRGBA{0x00, 0x00, 0x00, 0xff}
	colorRobot      = color.NRGBA{0x21, 0x96, 0xf3, 0xff}
	colorRobotRing  = color.NRGBA{0xff, 0xeb, 0x3b, 0xff}
	colorRed        = color.NRGBA{0xff, 0x00, 0x00, 0xff}
	colorPath       = color.NRGBA{0x00, 0xff, 0x00, 0xff}
	colorStart      = color.NRGBA{0x21, 0x96, 0xf3, 0xff}
	colorEnd        = color.NRGBA{0xff, 0x57, 0x22, 0xff}
	colorInterior   = color.NRGBA{0x4c, 0xaf, 0x50, 0xff}
	colorPanel      = color.NRGBA{0x00, 0x00, 0x00, 0xcc}
)

// Render builds the command list for one frame.
func Render(s State) []Command {
	size := s.Surface
	if size.Width <= 0 || size.Height <= 0 {
		size = DefaultSize
	}
	w, h := float64(size.Width), float64(size.Height)

	cmds := []Command{{
		Op: OpFillRect, Layer: LayerBackground,
		W: w, H: h, Color: colorBackground,
	}}

	if s.Map == nil {
		return cmds
	}
	tr, ok := viewport.Fit(s.Map.Width, s.Map.Height, w, h)
	if !ok {
		return cmds
	}

	cmds = appendMap(cmds, s.Map, tr)
	cmds = appendGrid(cmds, s.Map, tr)
	cmds = appendAxes(cmds, s.Map, tr)
	if s.Robot != nil && finite(s.Robot.Position) {
		cmds = appendRobot(cmds, s.Robot, tr)
	}
	if len(s.Trajectory) > 0 {
		cmds = appendTrajectory(cmds, s.Trajectory, tr, w)
	} else if finite(s.Target) {
		cmds = appendTarget(cmds, *s.Target, tr)
	}
	return appendInfo(cmds, s.Map, w)
}

func finite(p *pathdata.Point) bool {
	if p == nil {
		return false
	}
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

func appendMap(cmds []Command, m *Map, tr viewport.Transform) []Command {
	if m.Image == nil {
		return cmds
	}
	top := tr.SurfaceH - tr.OffsetY - tr.DisplayH
	return append(cmds,
		Command{Op: OpMapImage, Layer: LayerMap, X: tr.OffsetX, Y: top, W: tr.DisplayW, H: tr.DisplayH},
		Command{Op: OpStrokeRect, Layer: LayerMap, X: tr.OffsetX, Y: top, W: tr.DisplayW, H: tr.DisplayH,
			Width: 2, Color: colorMapBorder},
	)
}

func appendGrid(cmds []Command, m *Map, tr viewport.Transform) []Command {
	label := Font{Size: 10}
	bottom := tr.SurfaceH - tr.OffsetY
	for i := 0; float64(i) <= m.Width; i += gridStep {
		x0, y0 := tr.ToSurface(float64(i), 0)
		x1, y1 := tr.ToSurface(float64(i), m.Height)
		cmds = append(cmds, Command{Op: OpLine, Layer: LayerGrid,
			Points: []Vec{{x0, y0}, {x1, y1}}, Width: 1, Color: colorGrid})
		if i%gridLabelStep == 0 {
			cmds = append(cmds, Command{Op: OpText, Layer: LayerGrid,
				X: x0 - 5, Y: bottom + 15, Text: strconv.Itoa(i), Font: label, Color: colorWhite})
		}
	}
	for i := 0; float64(i) <= m.Height; i += gridStep {
		x0, y0 := tr.ToSurface(0, float64(i))
		x1, y1 := tr.ToSurface(m.Width, float64(i))
		cmds = append(cmds, Command{Op: OpLine, Layer: LayerGrid,
			Points: []Vec{{x0, y0}, {x1, y1}}, Width: 1, Color: colorGrid})
		if i%gridLabelStep == 0 {
			cmds = append(cmds, Command{Op: OpText, Layer: LayerGrid,
				X: tr.OffsetX - 25, Y: y0 + 3, Text: strconv.Itoa(i), Font: label, Color: colorWhite})
		}
	}
	return cmds
}

func appendAxes(cmds []Command, m *Map, tr viewport.Transform) []Command {
	ox, oy := tr.ToSurface(0, 0)
	xx, xy := tr.ToSurface(m.Width, 0)
	yx, yy := tr.ToSurface(0, m.Height)
	return append(cmds,
		Command{Op: OpLine, Layer: LayerAxes, Points: []Vec{{ox, oy}, {xx, xy}}, Width: 2, Color: colorWhite},
		Command{Op: OpLine, Layer: LayerAxes, Points: []Vec{{ox, oy}, {yx, yy}}, Width: 2, Color: colorWhite},
	)
}

func appendRobot(cmds []Command, r *Robot, tr viewport.Transform) []Command {
	pos := *r.Position
	x, y := tr.ToSurface(pos.X, pos.Y)
	return append(cmds,
		Command{Op: OpFillCircle, Layer: LayerRobot, X: x, Y: y, R: 20, Color: colorRobot},
		Command{Op: OpStrokeCircle, Layer: LayerRobot, X: x, Y: y, R: 20, Width: 3, Color: colorWhite},
		Command{Op: OpStrokeCircle, Layer: LayerRobot, X: x, Y: y, R: 15, Width: 2, Color: colorRobotRing},
		Command{Op: OpText, Layer: LayerRobot, X: x, Y: y, Text: "R",
			Font: Font{Size: 24, Bold: true}, Align: AlignCenter, Middle: true, Color: colorWhite},
		Command{Op: OpText, Layer: LayerRobot, X: x, Y: y + 35, Text: fmt.Sprintf("Robot %q", r.Name),
			Font: Font{Size: 14, Bold: true}, Align: AlignCenter, Color: colorRobot},
		Command{Op: OpText, Layer: LayerRobot, X: x, Y: y + 50, Text: fmt.Sprintf("X:%.1f Y:%.1f", pos.X, pos.Y),
			Font: Font{Size: 12}, Align: AlignCenter, Color: colorWhite},
		Command{Op: OpFillCircle, Layer: LayerRobot, X: x, Y: y, R: 3, Color: colorRed},
	)
}

func appendTrajectory(cmds []Command, points []pathdata.Point, tr viewport.Transform, surfW float64) []Command {
	valid := make([]pathdata.Point, 0, len(points))
	for i := range points {
		if finite(&points[i]) {
			valid = append(valid, points[i])
		}
	}
	if len(valid) == 0 {
		return cmds
	}

	line := make([]Vec, len(valid))
	for i, p := range valid {
		x, y := tr.ToSurface(p.X, p.Y)
		line[i] = Vec{x, y}
	}
	cmds = append(cmds, Command{Op: OpPolyline, Layer: LayerTrajectory, Points: line, Width: 4, Color: colorPath})

	for i, role := range Roles(len(valid)) {
		fill, radius := colorInterior, 6.0
		switch role {
		case RoleStart:
			fill, radius = colorStart, 10
		case RoleEnd:
			fill, radius = colorEnd, 10
		}
		v := line[i]
		cmds = append(cmds,
			Command{Op: OpFillCircle, Layer: LayerTrajectory, X: v.X, Y: v.Y, R: radius, Color: fill},
			Command{Op: OpStrokeCircle, Layer: LayerTrajectory, X: v.X, Y: v.Y, R: radius, Width: 2, Color: colorWhite},
		)
		if i < numberedLimit {
			cmds = append(cmds, Command{Op: OpText, Layer: LayerTrajectory, X: v.X, Y: v.Y,
				Text: strconv.Itoa(i + 1), Font: Font{Size: 10, Bold: true}, Align: AlignCenter, Middle: true, Color: colorWhite})
		}
	}

	if len(valid) >= 2 {
		first, last := valid[0], valid[len(valid)-1]
		cmds = append(cmds,
			Command{Op: OpText, Layer: LayerTrajectory, X: surfW / 2, Y: 30, Text: "TRAJECTORY",
				Font: Font{Size: 16, Bold: true}, Align: AlignCenter, Color: colorPath},
			Command{Op: OpText, Layer: LayerTrajectory, X: surfW / 2, Y: 50,
				Text: fmt.Sprintf("Start: (%.1f, %.1f) → End: (%.1f, %.1f)", first.X, first.Y, last.X, last.Y),
				Font: Font{Size: 12}, Align: AlignCenter, Color: colorPath},
		)
	}
	return cmds
}

func appendTarget(cmds []Command, p pathdata.Point, tr viewport.Transform) []Command {
	x, y := tr.ToSurface(p.X, p.Y)
	return append(cmds,
		Command{Op: OpFillCircle, Layer: LayerTarget, X: x, Y: y, R: 15, Color: colorRed},
		Command{Op: OpStrokeCircle, Layer: LayerTarget, X: x, Y: y, R: 15, Width: 3, Color: colorWhite},
		Command{Op: OpLine, Layer: LayerTarget, Points: []Vec{{x - 8, y - 8}, {x + 8, y + 8}}, Width: 2, Color: colorBlack},
		Command{Op: OpLine, Layer: LayerTarget, Points: []Vec{{x + 8, y - 8}, {x - 8, y + 8}}, Width: 2, Color: colorBlack},
		Command{Op: OpText, Layer: LayerTarget, X: x, Y: y + 30, Text: "Target",
			Font: Font{Size: 14, Bold: true}, Align: AlignCenter, Color: colorRed},
	)
}

func appendInfo(cmds []Command, m *Map, surfW float64) []Command {
	return append(cmds,
		Command{Op: OpFillRect, Layer: LayerInfo, X: surfW - 250, Y: 20, W: 230, H: 70, Color: colorPanel},
		Command{Op: OpText, Layer: LayerInfo, X: surfW - 30, Y: 45, Text: "MAP",
			Font: Font{Size: 16, Bold: true}, Align: AlignRight, Color: colorWhite},
		Command{Op: OpText, Layer: LayerInfo, X: surfW - 240, Y: 45,
			Text: fmt.Sprintf("Size: %g × %g m", m.Width, m.Height), Font: Font{Size: 14}, Color: colorWhite},
		Command{Op: OpText, Layer: LayerInfo, X: surfW - 240, Y: 70,
			Text: "1 px = 1 m", Font: Font{Size: 14}, Color: colorWhite},
	)
}
