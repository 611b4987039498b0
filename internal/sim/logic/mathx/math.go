package mathx

import (
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// unit is 2^-53: the top 53 bits of a 64-bit hash map exactly onto float64 mantissas.
const unit = 1.0 / (1 << 53)

// Luck maps an arbitrary key onto [0,1). The result depends only on the key bytes,
// so it is stable across runs and processes.
func Luck(key string) float64 {
	return float64(mix64(xxhash.Sum64String(key))>>11) * unit
}

// CellLuck is Luck over the "i,j,salt" key used for per-cell rolls.
func CellLuck(i, j int, salt string) float64 {
	return Luck(SaltedKey(i, j, salt))
}

func SaltedKey(i, j int, salt string) string {
	b := make([]byte, 0, 24+len(salt))
	b = strconv.AppendInt(b, int64(i), 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(j), 10)
	if salt != "" {
		b = append(b, ',')
		b = append(b, salt...)
	}
	return string(b)
}

// MaxIndex bounds FloorIndex so the float to int conversion never overflows.
const MaxIndex = 1 << 53

// FloorIndex is floor(offset/size), clamped to [-MaxIndex, MaxIndex]. NaN maps to 0.
func FloorIndex(offset, size float64) int {
	q := math.Floor(offset / size)
	switch {
	case math.IsNaN(q):
		return 0
	case q > MaxIndex:
		return MaxIndex
	case q < -MaxIndex:
		return -MaxIndex
	}
	return int(q)
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
