package detections

import (
	"image"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
)

// Preprocessor resizes camera images to the model input and writes them as
// normalized planar RGB (1x3xHxW).
type Preprocessor struct {
	width, height int
	numWorkers    int
}

func NewPreprocessor(width, height int) *Preprocessor {
	return &Preprocessor{
		width:      width,
		height:     height,
		numWorkers: runtime.GOMAXPROCS(0),
	}
}

func (p *Preprocessor) Len() int {
	return p.width * p.height * 3
}

// Process returns a freshly allocated tensor so the caller may hand it to
// another goroutine.
func (p *Preprocessor) Process(img image.Image) []float32 {
	resized := imaging.Resize(img, p.width, p.height, imaging.Linear)
	buffer := make([]float32, p.Len())
	p.processParallel(resized, buffer)
	return buffer
}

func (p *Preprocessor) processParallel(img *image.NRGBA, buffer []float32) {
	channelSize := p.width * p.height
	numWorkers := p.numWorkers
	if numWorkers > p.height {
		numWorkers = p.height
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	rowsPerWorker := p.height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := (w + 1) * rowsPerWorker
		if w == numWorkers-1 {
			endRow = p.height
		}

		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				src := img.Pix[y*img.Stride:]
				offset := y * p.width
				for x := 0; x < p.width; x++ {
					i := offset + x
					px := src[x*4:]
					buffer[i] = float32(px[0]) / 255.0
					buffer[channelSize+i] = float32(px[1]) / 255.0
					buffer[channelSize*2+i] = float32(px[2]) / 255.0
				}
			}
		}(startRow, endRow)
	}

	wg.Wait()
}
