package onnx

import (
	"image"
	"math"

	"github.com/nfnt/resize"

	"github.com/example/snapclassify/internal/classifier"
)

// Preprocess resizes img to size x size and lays it out as normalised CHW float32.
func Preprocess(img image.Image, size int) []float32 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*width + x
			data[idx] = float32(r) / 65535.0
			data[plane+idx] = float32(g) / 65535.0
			data[2*plane+idx] = float32(b) / 65535.0
		}
	}
	return data
}

// Softmax converts logits into probabilities.
func Softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxVal := float64(logits[0])
	for _, v := range logits[1:] {
		maxVal = math.Max(maxVal, float64(v))
	}
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(float64(v) - maxVal)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func toPredictions(classes []string, output []float32, probabilities bool) []classifier.Prediction {
	n := len(output)
	if len(classes) < n {
		n = len(classes)
	}

	var scores []float64
	if probabilities {
		scores = make([]float64, n)
		for i := 0; i < n; i++ {
			scores[i] = math.Min(math.Max(float64(output[i]), 0), 1)
		}
	} else {
		scores = Softmax(output[:n])
	}

	preds := make([]classifier.Prediction, n)
	for i := 0; i < n; i++ {
		preds[i] = classifier.Prediction{Label: classes[i], Score: scores[i]}
	}
	return preds
}
