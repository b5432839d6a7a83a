package main

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHistogramWritesPNG(t *testing.T) {
	tests := []struct {
		name   string
		values []int
		reveal bool
		bins   int
	}{
		{"two guesses", []int{500, 900}, false, 0},
		{"revealed", []int{120, 300, 450, 610, 700, 735, 800, 1500}, true, 0},
		{"identical guesses", []int{735, 735, 735}, true, 0},
		{"single guess", []int{10}, false, 0},
		{"fixed bins", []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, false, 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, renderHistogram(&buf, summarize(tc.values, 735, tc.reveal), tc.bins))

			img, err := png.Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, histogramWidth, img.Bounds().Dx())
			assert.Equal(t, histogramHeight, img.Bounds().Dy())
		})
	}
}

func TestRenderHistogramRefusesEmptySample(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, renderHistogram(&buf, Summary{}, 0), ErrNoGuesses)
	assert.Zero(t, buf.Len())
}

func TestHistogramOutline(t *testing.T) {
	xs, ys := histogramOutline([]float64{0, 1, 2}, []int{3, 1})

	assert.Equal(t, []float64{0, 0, 1, 1, 1, 1, 2, 2}, xs)
	assert.Equal(t, []float64{0, 3, 3, 0, 0, 1, 1, 0}, ys)
}
