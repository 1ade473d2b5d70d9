package ndvi

// ComputeNDVI returns clip((nir-red)/(nir+red), -1, 1) for every pixel.
//
// Pixels where nir+red is zero have no defined index and are set to NaN, as
// are pixels where either input is NaN. Clipping leaves NaN untouched.
func ComputeNDVI(red, nir *Raster) (*Raster, error) {
	if red.Shape() != nir.Shape() {
		return nil, &ShapeMismatchError{Red: red.Shape(), NIR: nir.Shape()}
	}

	out := NewRaster(red.W, red.H)
	for i := range out.Pix {
		r, n := red.Pix[i], nir.Pix[i]
		sum := n + r
		if sum == 0 {
			out.Pix[i] = nan32
			continue
		}
		out.Pix[i] = clip((n-r)/sum, -1, 1)
	}

	return out, nil
}

func clip(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
