package capture

import "image"

// barColors are the classic eight vertical test bars, RGB.
var barColors = [8][3]byte{
	{255, 255, 255}, // white
	{255, 255, 0},   // yellow
	{0, 255, 255},   // cyan
	{0, 255, 0},     // green
	{255, 0, 255},   // magenta
	{255, 0, 0},     // red
	{0, 0, 255},     // blue
	{0, 0, 0},       // black
}

// Bars renders animated vertical color bars at the projector's native size.
// The pattern is a pure function of the frame counter, so a given frame
// index always yields the same image. Used as a standalone source for device
// smoke tests and as the degrade path when a real capture source fails.
type Bars struct {
	frame int
	img   *image.RGBA
}

// NewBars returns a bar generator starting at frame zero.
func NewBars() *Bars {
	return &Bars{img: image.NewRGBA(image.Rect(0, 0, 800, 600))}
}

// Capture renders the next frame of the pattern. The bars shift one slot
// every 8 frames so motion is visible even at low frame rates.
func (p *Bars) Capture() (*image.RGBA, error) {
	w := p.img.Rect.Dx()
	h := p.img.Rect.Dy()
	barWidth := w / len(barColors)
	shift := p.frame / 8

	for x := 0; x < w; x++ {
		bar := x / barWidth
		if bar >= len(barColors) {
			bar = len(barColors) - 1
		}
		c := barColors[(bar+shift)%len(barColors)]
		for y := 0; y < h; y++ {
			off := p.img.PixOffset(x, y)
			p.img.Pix[off] = c[0]
			p.img.Pix[off+1] = c[1]
			p.img.Pix[off+2] = c[2]
			p.img.Pix[off+3] = 0xff
		}
	}
	p.frame++
	return p.img, nil
}

// Name implements Source.
func (p *Bars) Name() string {
	return "test-bars"
}

// Close implements Source.
func (p *Bars) Close() error {
	return nil
}
