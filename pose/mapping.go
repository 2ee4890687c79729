package pose

// Viewport maps model input-pixel coordinates into the view the ray caster
// works in. A zero Width or Height leaves coordinates in model space.
type Viewport struct {
	InputSize int
	Width     float64
	Height    float64
}

func (v Viewport) ToView(x, y float64) (float64, float64) {
	if v.InputSize <= 0 || v.Width <= 0 || v.Height <= 0 {
		return x, y
	}
	size := float64(v.InputSize)
	return x * v.Width / size, y * v.Height / size
}

// ScreenToNormalized converts screen pixels to normalized device coordinates
// in [-1, 1] with +y up.
func ScreenToNormalized(x, y, width, height float64) (float64, float64) {
	nx := (x/width)*2 - 1
	ny := -((y/height)*2 - 1)
	return nx, ny
}
