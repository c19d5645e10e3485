package recordstore

import (
	"math"
	"time"
)

func mathFloatBits(f float64) uint64      { return math.Float64bits(f) }
func mathFloatFromBits(b uint64) float64  { return math.Float64frombits(b) }
func mathFloat32Bits(f float32) uint32    { return math.Float32bits(f) }
func mathFloat32FromBits(b uint32) float32 { return math.Float32frombits(b) }

func timeFromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
