// Package viewport maps world coordinates (meters, origin bottom-left,
// Y up) onto a raster surface (pixels, origin top-left, Y down).
//
// The map is fitted into the surface preserving aspect ratio, shrunk by
// FitFactor to leave a margin, and centered.
package viewport

import "math"

// FitFactor is the share of the limiting surface dimension the map occupies.
const FitFactor = 0.85

// Transform is the result of fitting a map into a surface.
type Transform struct {
	Scale    float64
	OffsetX  float64
	OffsetY  float64
	DisplayW float64
	DisplayH float64
	SurfaceH float64
}

// Fit computes the transform for a mapW×mapH map on a surfW×surfH surface.
// ok is false when any dimension is non-positive or non-finite.
func Fit(mapW, mapH, surfW, surfH float64) (t Transform, ok bool) {
	if !positive(mapW) || !positive(mapH) || !positive(surfW) || !positive(surfH) {
		return Transform{}, false
	}
	scale := math.Min(surfW/mapW, surfH/mapH) * FitFactor
	displayW := mapW * scale
	displayH := mapH * scale
	return Transform{
		Scale:    scale,
		OffsetX:  (surfW - displayW) / 2,
		OffsetY:  (surfH - displayH) / 2,
		DisplayW: displayW,
		DisplayH: displayH,
		SurfaceH: surfH,
	}, true
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// ToSurface projects a world point. Points outside the map extent are
// projected linearly without clamping.
func (t Transform) ToSurface(worldX, worldY float64) (px, py float64) {
	px = t.OffsetX + worldX*t.Scale
	py = t.SurfaceH - (t.OffsetY + worldY*t.Scale)
	return px, py
}

// ToWorld is the inverse of ToSurface.
func (t Transform) ToWorld(px, py float64) (worldX, worldY float64) {
	if t.Scale == 0 {
		return 0, 0
	}
	worldX = (px - t.OffsetX) / t.Scale
	worldY = (t.SurfaceH - py - t.OffsetY) / t.Scale
	return worldX, worldY
}

// Contains reports whether a surface pixel lies inside the displayed map.
func (t Transform) Contains(px, py float64) bool {
	top := t.SurfaceH - t.OffsetY - t.DisplayH
	return px >= t.OffsetX && px <= t.OffsetX+t.DisplayW &&
		py >= top && py <= top+t.DisplayH
}

// WorldToSurface projects one point. Degenerate inputs yield (0, 0).
func WorldToSurface(worldX, worldY, mapW, mapH, surfW, surfH float64) (px, py float64) {
	t, ok := Fit(mapW, mapH, surfW, surfH)
	if !ok {
		return 0, 0
	}
	return t.ToSurface(worldX, worldY)
}
