package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/wegman-software/mapster-go/internal/style"
)

// margin keeps strokes on the outermost shapes inside the canvas
const margin = 0.02

// Render drains the queue onto a width x height canvas. bounds is the
// accumulated Web Mercator bound of the queued shapes; it is fitted into
// the canvas keeping its aspect ratio. A nil style selects the built-in palette.
func (q *Queue) Render(bounds orb.Bound, width, height int, st *style.Style) *image.RGBA {
	if st == nil {
		st = style.Default()
	}

	c := newCanvas(bounds, width, height, st)
	for {
		s, ok := q.Pop()
		if !ok {
			break
		}
		c.draw(s)
	}
	return c.img
}

// label is a placed label rectangle in the collision index
type label struct {
	rect rtreego.Rect
}

func (l *label) Bounds() rtreego.Rect { return l.rect }

type canvas struct {
	img    *image.RGBA
	style  *style.Style
	raster *vector.Rasterizer
	labels *rtreego.Rtree

	minX, minY float64
	scale      float64
	offX, offY float64
}

func newCanvas(b orb.Bound, width, height int, st *style.Style) *canvas {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(st.Background), image.Point{}, draw.Src)

	c := &canvas{
		img:    img,
		style:  st,
		raster: vector.NewRasterizer(width, height),
		labels: rtreego.NewTree(2, 25, 50),
	}
	if b.IsEmpty() {
		return c
	}

	w, h := float64(width), float64(height)
	dx, dy := b.Max.X()-b.Min.X(), b.Max.Y()-b.Min.Y()
	switch {
	case dx > 0 && dy > 0:
		c.scale = math.Min(w/dx, h/dy)
	case dx > 0:
		c.scale = w / dx
	case dy > 0:
		c.scale = h / dy
	default:
		c.scale = 1
	}
	c.scale *= 1 - 2*margin

	c.minX, c.minY = b.Min.X(), b.Min.Y()
	c.offX = (w - dx*c.scale) / 2
	c.offY = (h - dy*c.scale) / 2
	return c
}

// pixel maps a Web Mercator point to canvas coordinates, y pointing down
func (c *canvas) pixel(p orb.Point) (float32, float32) {
	x := (p.X()-c.minX)*c.scale + c.offX
	y := float64(c.img.Rect.Dy()) - ((p.Y()-c.minY)*c.scale + c.offY)
	return float32(x), float32(y)
}

func (c *canvas) draw(s Shape) {
	paint, ok := c.style.Paint(s.StyleClass())
	if !ok {
		return
	}

	switch v := s.(type) {
	case *GeoFeature:
		if v.Polygon && paint.Fill != nil {
			c.fill(v.points, *paint.Fill)
		} else if paint.Fill != nil {
			c.stroke(v.points, 1, *paint.Fill)
		}
	case *Waterway:
		if v.Polygon && paint.Fill != nil {
			c.fill(v.points, *paint.Fill)
		} else if paint.Stroke != nil {
			c.stroke(v.points, paint.Width, *paint.Stroke)
		}
	case *Road, *Railway, *Border:
		if paint.Stroke != nil {
			c.stroke(s.Points(), paint.Width, *paint.Stroke)
		}
	case *PopulatedPlace:
		if len(v.points) == 0 || paint.Fill == nil {
			return
		}
		x, y := c.pixel(v.points[0])
		c.square(x, y, float32(paint.Width)/2, *paint.Fill)
		if v.Label != "" {
			c.label(v.Label, x+float32(paint.Width), y)
		}
	}
}

func (c *canvas) paint(col color.NRGBA) {
	c.raster.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{})
}

func (c *canvas) fill(pts []orb.Point, col color.NRGBA) {
	if len(pts) < 3 {
		return
	}
	c.raster.Reset(c.img.Rect.Dx(), c.img.Rect.Dy())
	x, y := c.pixel(pts[0])
	c.raster.MoveTo(x, y)
	for _, p := range pts[1:] {
		x, y = c.pixel(p)
		c.raster.LineTo(x, y)
	}
	c.raster.ClosePath()
	c.paint(col)
}

// stroke draws a polyline as one quad per segment plus a square on every
// vertex, all wound the same way so overlaps do not cancel out.
func (c *canvas) stroke(pts []orb.Point, width float64, col color.NRGBA) {
	if len(pts) < 2 {
		return
	}
	half := float32(width / 2)
	c.raster.Reset(c.img.Rect.Dx(), c.img.Rect.Dy())

	px, py := c.pixel(pts[0])
	c.vertex(px, py, half)
	for _, p := range pts[1:] {
		x, y := c.pixel(p)
		dx, dy := x-px, y-py
		length := float32(math.Hypot(float64(dx), float64(dy)))
		if length > 0 {
			nx, ny := -dy/length*half, dx/length*half
			c.raster.MoveTo(px+nx, py+ny)
			c.raster.LineTo(x+nx, y+ny)
			c.raster.LineTo(x-nx, y-ny)
			c.raster.LineTo(px-nx, py-ny)
			c.raster.ClosePath()
			c.vertex(x, y, half)
		}
		px, py = x, y
	}
	c.paint(col)
}

// vertex adds a square around a joint with the winding of the segment quads
func (c *canvas) vertex(x, y, half float32) {
	c.raster.MoveTo(x-half, y-half)
	c.raster.LineTo(x-half, y+half)
	c.raster.LineTo(x+half, y+half)
	c.raster.LineTo(x+half, y-half)
	c.raster.ClosePath()
}

func (c *canvas) square(x, y, half float32, col color.NRGBA) {
	c.raster.Reset(c.img.Rect.Dx(), c.img.Rect.Dy())
	c.vertex(x, y, half)
	c.paint(col)
}

// label draws text left-aligned at x, vertically centered on y, unless it
// would leave the canvas or overlap a label that is already placed.
func (c *canvas) label(text string, x, y float32) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	metrics := face.Metrics()
	height := metrics.Height.Ceil()

	left := int(x)
	top := int(y) - height/2
	box := image.Rect(left-1, top-1, left+width+1, top+height+1)
	if !box.In(c.img.Bounds()) {
		return
	}

	rect, err := rtreego.NewRect(
		rtreego.Point{float64(box.Min.X), float64(box.Min.Y)},
		[]float64{float64(box.Dx()), float64(box.Dy())},
	)
	if err != nil || len(c.labels.SearchIntersect(rect)) > 0 {
		return
	}
	c.labels.Insert(&label{rect: rect})

	baseline := top + metrics.Ascent.Ceil()
	d := &font.Drawer{Dst: c.img, Face: face}

	d.Src = image.NewUniform(c.style.LabelHalo)
	for _, off := range [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		d.Dot = fixed.P(left+off[0], baseline+off[1])
		d.DrawString(text)
	}

	d.Src = image.NewUniform(c.style.LabelColor)
	d.Dot = fixed.P(left, baseline)
	d.DrawString(text)
}
