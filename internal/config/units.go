package config

import "math"

// LitersToML converts liters to whole milliliters.
func LitersToML(liters float64) int64 {
	return int64(math.Round(liters * 1000))
}

// MLToLiters converts milliliters to liters.
func MLToLiters(ml int64) float64 {
	return float64(ml) / 1000
}
