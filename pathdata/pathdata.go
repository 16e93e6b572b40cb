// Package pathdata decodes and encodes the planner's textual path format:
// points separated by ';', each point a ','-separated list of key:value
// pairs. Only the x and y keys are meaningful here.
package pathdata

import (
	"math"
	"strconv"
	"strings"
)

// Point is a position in world meters, origin bottom-left, Y up.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Decode parses raw path data. Malformed entries are dropped; Decode never
// fails and returns a non-nil slice.
func Decode(raw string) []Point {
	points := []Point{}
	for _, entry := range strings.Split(raw, ";") {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		var (
			x, y       float64
			hasX, hasY bool
		)
		for _, pair := range strings.Split(entry, ",") {
			key, value, ok := strings.Cut(pair, ":")
			if !ok {
				continue
			}
			v, ok := parseValue(value)
			switch strings.TrimSpace(key) {
			case "x":
				x, hasX = v, ok
			case "y":
				y, hasY = v, ok
			}
		}
		if hasX && hasY {
			points = append(points, Point{X: x, Y: y})
		}
	}
	return points
}

func parseValue(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Encode renders points in the wire format accepted by Decode.
func Encode(points []Point) string {
	var b strings.Builder
	for i, p := range points {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString("x:")
		b.WriteString(strconv.FormatFloat(p.X, 'g', -1, 64))
		b.WriteString(",y:")
		b.WriteString(strconv.FormatFloat(p.Y, 'g', -1, 64))
	}
	return b.String()
}

const rawPreviewLen = 200

// Summary describes a raw path for the trajectory info panel.
type Summary struct {
	Count      int     `json:"count"`
	First      *Point  `json:"first,omitempty"`
	Last       *Point  `json:"last,omitempty"`
	Preview    []Point `json:"preview"`
	RawPreview string  `json:"raw_preview"`
}

// Summarize decodes raw and reports the point count, endpoints, the first
// five points and a truncated copy of the raw text.
func Summarize(raw string) Summary {
	points := Decode(raw)
	s := Summary{Count: len(points), Preview: points}
	if len(points) > 5 {
		s.Preview = points[:5]
	}
	if len(points) > 0 {
		first, last := points[0], points[len(points)-1]
		s.First, s.Last = &first, &last
	}
	s.RawPreview = raw
	if len(raw) > rawPreviewLen {
		s.RawPreview = raw[:rawPreviewLen] + "..."
	}
	return s
}
