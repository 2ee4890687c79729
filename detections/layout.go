package detections

import "fmt"

// LayoutKind tags how anchors are laid out in the output buffer.
type LayoutKind int

const (
	// ChannelMajor is [1, C, N]: each of the C rows holds one field for all N anchors.
	ChannelMajor LayoutKind = iota + 1
	// AnchorMajor is a repeating (4 + obj + K) tuple per anchor, either flat,
	// [N, stride] or [1, N, stride].
	AnchorMajor
)

func (k LayoutKind) String() string {
	switch k {
	case ChannelMajor:
		return "channel-major"
	case AnchorMajor:
		return "anchor-major"
	default:
		return fmt.Sprintf("layout(%d)", int(k))
	}
}

// Layout is the resolved addressing scheme for one output tensor.
type Layout struct {
	Kind          LayoutKind
	Channels      int
	Anchors       int
	Classes       int
	HasObjectness bool
}

func (l Layout) at(data []float32, anchor, field int) float32 {
	if l.Kind == ChannelMajor {
		return data[field*l.Anchors+anchor]
	}
	return data[anchor*l.Channels+field]
}

func (l Layout) classOffset() int {
	if l.HasObjectness {
		return boxFields + 1
	}
	return boxFields
}

// ResolveLayout inspects the declared dims of a buffer of length n and picks
// a layout. numClasses <= 0 means unknown; a [1, C, N] tensor is then taken
// as channel-major and a flat buffer cannot be resolved.
func ResolveLayout(n int, dims []int64, numClasses int, hasObjectness bool) (Layout, error) {
	prefix := boxFields
	if hasObjectness {
		prefix++
	}
	stride := 0
	if numClasses > 0 {
		stride = prefix + numClasses
	}

	if len(dims) == 0 {
		dims = []int64{int64(n)}
	}
	total := int64(1)
	for _, d := range dims {
		if d < 0 {
			return Layout{}, shapeMismatch(fmt.Sprintf("negative dimension in %v", dims), int(d), 0)
		}
		// total never exceeds n, so the product cannot wrap.
		if d != 0 && total > int64(n)/d {
			return Layout{}, shapeMismatch(fmt.Sprintf("shape %v exceeds buffer length", dims), n, 0)
		}
		total *= d
	}
	if total != int64(n) {
		return Layout{}, shapeMismatch(fmt.Sprintf("buffer length does not match shape %v", dims), n, int(total))
	}

	layout := Layout{HasObjectness: hasObjectness}
	switch len(dims) {
	case 3:
		if dims[0] != 1 {
			return Layout{}, shapeMismatch("batch dimension must be 1", int(dims[0]), 1)
		}
		rows, cols := int(dims[1]), int(dims[2])
		switch {
		case stride == 0 || rows == stride:
			layout.Kind, layout.Channels, layout.Anchors = ChannelMajor, rows, cols
		case cols == stride:
			layout.Kind, layout.Channels, layout.Anchors = AnchorMajor, cols, rows
		default:
			return Layout{}, shapeMismatch(fmt.Sprintf("neither axis of %v matches %d fields per anchor", dims, stride), rows, stride)
		}
	case 2:
		rows, cols := int(dims[0]), int(dims[1])
		if rows == 1 && cols != stride {
			return resolveFlat(cols, stride, layout)
		}
		if stride > 0 && cols != stride {
			return Layout{}, shapeMismatch(fmt.Sprintf("row width of %v does not match fields per anchor", dims), cols, stride)
		}
		layout.Kind, layout.Channels, layout.Anchors = AnchorMajor, cols, rows
	case 1:
		return resolveFlat(int(dims[0]), stride, layout)
	default:
		return Layout{}, shapeMismatch(fmt.Sprintf("unsupported rank %d", len(dims)), len(dims), 3)
	}

	return finishLayout(layout, prefix)
}

func resolveFlat(length, stride int, layout Layout) (Layout, error) {
	if stride == 0 {
		return Layout{}, shapeMismatch("flat anchor-major buffer needs a known class count", length, 0)
	}
	if length%stride != 0 {
		return Layout{}, shapeMismatch("flat buffer is not a whole number of anchors", length, (length/stride+1)*stride)
	}
	layout.Kind = AnchorMajor
	layout.Channels = stride
	layout.Anchors = length / stride
	prefix := boxFields
	if layout.HasObjectness {
		prefix++
	}
	return finishLayout(layout, prefix)
}

func finishLayout(layout Layout, prefix int) (Layout, error) {
	if layout.Channels < prefix+1 {
		return Layout{}, shapeMismatch(fmt.Sprintf("%s tensor needs at least %d fields per anchor", layout.Kind, prefix+1), layout.Channels, prefix+1)
	}
	layout.Classes = layout.Channels - prefix
	return layout, nil
}
