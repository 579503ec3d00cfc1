// Package blend merges the classifier probability with document scores.
package blend

// Blend policy constants.
const (
	ModelWeight      = 0.7
	ExternalWeight   = 0.3
	MaxExternalScore = 10
)

// Blend combines p with SOP and LOR scores on the default 0..10 scale.
func Blend(p, sop, lor float64) float64 {
	return BlendScaled(p, sop, lor, MaxExternalScore)
}

// BlendScaled computes 0.7*p + 0.3*mean(sop/max, lor/max). Inputs are not
// validated.
func BlendScaled(p, sop, lor, maxExternal float64) float64 {
	external := (sop/maxExternal + lor/maxExternal) / 2
	return ModelWeight*p + ExternalWeight*external
}
