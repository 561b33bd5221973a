// Package fixed provides fixed-point arithmetic types used for edge walking
// in the rasterizer.
//
// Conversions from float round to the nearest representable value, so that
// two triangles sharing an edge compute the same fixed-point positions for
// it.
package fixed

//go:generate go run mkfixed.go Int16_16 int32
type Int16_16 int32
