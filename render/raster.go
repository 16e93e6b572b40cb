package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Options configures rasterization.
type Options struct {
	// Supersample renders at k times the surface size and downsamples
	// for smoother edges. Values below 1 are treated as 1.
	Supersample int
}

func DefaultOptions() Options {
	return Options{Supersample: 2}
}

var (
	fontsOnce   sync.Once
	regularFont *opentype.Font
	boldFont    *opentype.Font
)

func loadFonts() {
	fontsOnce.Do(func() {
		var err error
		regularFont, err = opentype.Parse(goregular.TTF)
		if err != nil {
			panic(err) // embedded font
		}
		boldFont, err = opentype.Parse(gobold.TTF)
		if err != nil {
			panic(err)
		}
	})
}

type canvas struct {
	img   *image.RGBA
	k     float64
	faces map[Font]font.Face
}

// Rasterize replays cmds onto a fresh surface. mapImg backs OpMapImage
// commands and may be nil.
func Rasterize(cmds []Command, size Size, mapImg image.Image, opts Options) *image.RGBA {
	if size.Width <= 0 || size.Height <= 0 {
		size = DefaultSize
	}
	k := opts.Supersample
	if k < 1 {
		k = 1
	}
	loadFonts()

	c := &canvas{
		img:   image.NewRGBA(image.Rect(0, 0, size.Width*k, size.Height*k)),
		k:     float64(k),
		faces: make(map[Font]font.Face),
	}
	defer c.closeFaces()

	for i := range cmds {
		c.exec(&cmds[i], mapImg)
	}
	if k == 1 {
		return c.img
	}
	out := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.CatmullRom.Scale(out, out.Bounds(), c.img, c.img.Bounds(), draw.Src, nil)
	return out
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// Frame renders s all the way to PNG bytes.
func Frame(s State, opts Options) ([]byte, error) {
	var mapImg image.Image
	if s.Map != nil {
		mapImg = s.Map.Image
	}
	img := Rasterize(Render(s), s.Surface, mapImg, opts)
	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *canvas) exec(cmd *Command, mapImg image.Image) {
	k := c.k
	switch cmd.Op {
	case OpFillRect:
		c.fillRect(cmd.X*k, cmd.Y*k, cmd.W*k, cmd.H*k, cmd.Color)
	case OpStrokeRect:
		lw := cmd.Width * k
		x, y, w, h := cmd.X*k, cmd.Y*k, cmd.W*k, cmd.H*k
		c.fillRect(x-lw/2, y-lw/2, w+lw, lw, cmd.Color)
		c.fillRect(x-lw/2, y+h-lw/2, w+lw, lw, cmd.Color)
		c.fillRect(x-lw/2, y+lw/2, lw, h-lw, cmd.Color)
		c.fillRect(x+w-lw/2, y+lw/2, lw, h-lw, cmd.Color)
	case OpMapImage:
		if mapImg == nil {
			return
		}
		r := image.Rect(int(math.Round(cmd.X*k)), int(math.Round(cmd.Y*k)),
			int(math.Round((cmd.X+cmd.W)*k)), int(math.Round((cmd.Y+cmd.H)*k)))
		draw.NearestNeighbor.Scale(c.img, r, mapImg, mapImg.Bounds(), draw.Over, nil)
	case OpLine, OpPolyline:
		pts := cmd.Points
		if len(pts) == 1 {
			c.segment(pts[0], pts[0], cmd.Width*k, cmd.Color)
		}
		for i := 1; i < len(pts); i++ {
			c.segment(pts[i-1], pts[i], cmd.Width*k, cmd.Color)
		}
	case OpFillCircle:
		c.ring(cmd.X*k, cmd.Y*k, 0, cmd.R*k, cmd.Color)
	case OpStrokeCircle:
		half := cmd.Width * k / 2
		c.ring(cmd.X*k, cmd.Y*k, math.Max(0, cmd.R*k-half), cmd.R*k+half, cmd.Color)
	case OpText:
		c.text(cmd)
	}
}

// blend composites a non-premultiplied color over one pixel.
func (c *canvas) blend(x, y int, col color.NRGBA) {
	if !image.Pt(x, y).In(c.img.Rect) || col.A == 0 {
		return
	}
	i := c.img.PixOffset(x, y)
	p := c.img.Pix[i : i+4 : i+4]
	if col.A == 0xff {
		p[0], p[1], p[2], p[3] = col.R, col.G, col.B, 0xff
		return
	}
	a := uint32(col.A)
	inv := 255 - a
	p[0] = uint8((uint32(col.R)*a + uint32(p[0])*inv) / 255)
	p[1] = uint8((uint32(col.G)*a + uint32(p[1])*inv) / 255)
	p[2] = uint8((uint32(col.B)*a + uint32(p[2])*inv) / 255)
	p[3] = uint8(a + uint32(p[3])*inv/255)
}

func (c *canvas) fillRect(x, y, w, h float64, col color.NRGBA) {
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := int(math.Ceil(x+w)), int(math.Ceil(y+h))
	r := image.Rect(x0, y0, x1, y1).Intersect(c.img.Rect)
	for py := r.Min.Y; py < r.Max.Y; py++ {
		for px := r.Min.X; px < r.Max.X; px++ {
			c.blend(px, py, col)
		}
	}
}

// ring fills the annulus rin <= d <= rout around (cx, cy).
func (c *canvas) ring(cx, cy, rin, rout float64, col color.NRGBA) {
	r := image.Rect(int(math.Floor(cx-rout)), int(math.Floor(cy-rout)),
		int(math.Ceil(cx+rout))+1, int(math.Ceil(cy+rout))+1).Intersect(c.img.Rect)
	for py := r.Min.Y; py < r.Max.Y; py++ {
		for px := r.Min.X; px < r.Max.X; px++ {
			d := math.Hypot(float64(px)+0.5-cx, float64(py)+0.5-cy)
			if d >= rin && d <= rout {
				c.blend(px, py, col)
			}
		}
	}
}

// segment draws a capsule of the given width, which gives round caps
// and round joins where segments meet.
func (c *canvas) segment(a, b Vec, width float64, col color.NRGBA) {
	k := c.k
	ax, ay, bx, by := a.X*k, a.Y*k, b.X*k, b.Y*k
	half := math.Max(width/2, 0.5)
	r := image.Rect(int(math.Floor(math.Min(ax, bx)-half)), int(math.Floor(math.Min(ay, by)-half)),
		int(math.Ceil(math.Max(ax, bx)+half))+1, int(math.Ceil(math.Max(ay, by)+half))+1).Intersect(c.img.Rect)
	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	for py := r.Min.Y; py < r.Max.Y; py++ {
		for px := r.Min.X; px < r.Max.X; px++ {
			fx, fy := float64(px)+0.5, float64(py)+0.5
			t := 0.0
			if lenSq > 0 {
				t = math.Max(0, math.Min(1, ((fx-ax)*dx+(fy-ay)*dy)/lenSq))
			}
			if math.Hypot(fx-(ax+t*dx), fy-(ay+t*dy)) <= half {
				c.blend(px, py, col)
			}
		}
	}
}

func (c *canvas) face(f Font) font.Face {
	if face, ok := c.faces[f]; ok {
		return face
	}
	src := regularFont
	if f.Bold {
		src = boldFont
	}
	face, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    f.Size * c.k,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil
	}
	c.faces[f] = face
	return face
}

func (c *canvas) closeFaces() {
	for _, f := range c.faces {
		f.Close()
	}
}

func (c *canvas) text(cmd *Command) {
	if cmd.Text == "" || cmd.Font.Size <= 0 {
		return
	}
	face := c.face(cmd.Font)
	if face == nil {
		return
	}
	x, y := cmd.X*c.k, cmd.Y*c.k
	width := font.MeasureString(face, cmd.Text)
	switch cmd.Align {
	case AlignCenter:
		x -= float64(width) / 128
	case AlignRight:
		x -= float64(width) / 64
	}
	if cmd.Middle {
		// cap height sits at roughly 0.7 of the ascent
		y += float64(face.Metrics().Ascent) / 64 * 0.35
	}
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(cmd.Color),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(y * 64)},
	}
	d.DrawString(cmd.Text)
}
