package render

import (
	"image"
	"image/color"

	"deliverydash/pathdata"
)

type Op int

const (
	OpFillRect Op = iota + 1
	OpStrokeRect
	OpMapImage
	OpLine
	OpPolyline
	OpFillCircle
	OpStrokeCircle
	OpText
)

var opNames = map[Op]string{
	OpFillRect:     "fill_rect",
	OpStrokeRect:   "stroke_rect",
	OpMapImage:     "map_image",
	OpLine:         "line",
	OpPolyline:     "polyline",
	OpFillCircle:   "fill_circle",
	OpStrokeCircle: "stroke_circle",
	OpText:         "text",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "unknown"
}

func (o Op) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Layer tags each command with the pass that produced it.
type Layer int

const (
	LayerBackground Layer = iota + 1
	LayerMap
	LayerGrid
	LayerAxes
	LayerRobot
	LayerTrajectory
	LayerTarget
	LayerInfo
)

func (l Layer) String() string {
	switch l {
	case LayerBackground:
		return "background"
	case LayerMap:
		return "map"
	case LayerGrid:
		return "grid"
	case LayerAxes:
		return "axes"
	case LayerRobot:
		return "robot"
	case LayerTrajectory:
		return "trajectory"
	case LayerTarget:
		return "target"
	case LayerInfo:
		return "info"
	}
	return "unknown"
}

func (l Layer) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

type Font struct {
	Size float64
	Bold bool
}

type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Command is one drawing instruction in surface pixels.
//
//	rects:   X, Y, W, H
//	circles: X, Y, R
//	text:    X, Y is the anchor; Y is the baseline unless Middle is set
//	lines:   Points
type Command struct {
	Op     Op          `json:"op"`
	Layer  Layer       `json:"layer"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	W      float64     `json:"w,omitempty"`
	H      float64     `json:"h,omitempty"`
	R      float64     `json:"r,omitempty"`
	Points []Vec       `json:"points,omitempty"`
	Width  float64     `json:"width,omitempty"`
	Color  color.NRGBA `json:"color"`
	Text   string      `json:"text,omitempty"`
	Font   Font        `json:"font"`
	Align  Align       `json:"align,omitempty"`
	Middle bool        `json:"middle,omitempty"`
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultSize is the operator surface size.
var DefaultSize = Size{Width: 1200, Height: 800}

type Robot struct {
	Name     string
	Position *pathdata.Point
}

// Map is the occupancy raster. One raster pixel is one meter.
type Map struct {
	Width  float64
	Height float64
	Image  image.Image
}

// State is everything one frame depends on.
type State struct {
	Robot      *Robot
	Trajectory []pathdata.Point
	Target     *pathdata.Point
	Map        *Map
	Surface    Size
}

// Role is the marker style of a trajectory point.
type Role int

const (
	RoleStart Role = iota + 1
	RoleInterior
	RoleEnd
)

// Roles assigns a marker role to each of n points. A lone point is a start.
func Roles(n int) []Role {
	roles := make([]Role, n)
	for i := range roles {
		switch {
		case i == 0:
			roles[i] = RoleStart
		case i == n-1:
			roles[i] = RoleEnd
		default:
			roles[i] = RoleInterior
		}
	}
	return roles
}
