package grid

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"worldofbits.app/internal/sim/logic/mathx"
)

// EarthRadiusMeters matches the spherical Earth model used by web map clients.
const EarthRadiusMeters = 6371000.0

type CellIndex struct {
	I int
	J int
}

// Key is the durable-store key: "i,j".
func (c CellIndex) Key() string {
	return mathx.SaltedKey(c.I, c.J, "")
}

func (c CellIndex) String() string { return c.Key() }

func ParseKey(key string) (CellIndex, error) {
	is, js, ok := strings.Cut(key, ",")
	if !ok {
		return CellIndex{}, fmt.Errorf("bad cell key %q", key)
	}
	i, err := strconv.Atoi(is)
	if err != nil {
		return CellIndex{}, fmt.Errorf("bad cell key %q: %w", key, err)
	}
	j, err := strconv.Atoi(js)
	if err != nil {
		return CellIndex{}, fmt.Errorf("bad cell key %q: %w", key, err)
	}
	return CellIndex{I: i, J: j}, nil
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p LatLng) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) && !math.IsNaN(p.Lng) && !math.IsInf(p.Lng, 0)
}

// InRange reports whether p is a real position: latitude in [-90, 90], longitude in [-180, 180].
func (p LatLng) InRange() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Rect is a geographic rectangle. For cell bounds it is half-open: [South,North) x [West,East).
type Rect struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

func (r Rect) Center() LatLng {
	return LatLng{Lat: (r.South + r.North) / 2, Lng: (r.West + r.East) / 2}
}

func (r Rect) Valid() bool {
	for _, v := range []float64{r.South, r.West, r.North, r.East} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.South <= r.North && r.West <= r.East
}

// InRange reports whether both corners are real positions.
func (r Rect) InRange() bool {
	return LatLng{Lat: r.South, Lng: r.West}.InRange() && LatLng{Lat: r.North, Lng: r.East}.InRange()
}

// Recenter moves r so its center is p, keeping its extent.
func (r Rect) Recenter(p LatLng) Rect {
	halfLat := (r.North - r.South) / 2
	halfLng := (r.East - r.West) / 2
	return Rect{South: p.Lat - halfLat, North: p.Lat + halfLat, West: p.Lng - halfLng, East: p.Lng + halfLng}
}

// Window is an inclusive range of cell indices.
type Window struct {
	IMin, IMax int
	JMin, JMax int
}

func (w Window) Contains(c CellIndex) bool {
	return c.I >= w.IMin && c.I <= w.IMax && c.J >= w.JMin && c.J <= w.JMax
}

func (w Window) Len() int {
	if w.IMax < w.IMin || w.JMax < w.JMin {
		return 0
	}
	return (w.IMax - w.IMin + 1) * (w.JMax - w.JMin + 1)
}

// LenAtMost reports whether the window holds at most n cells, without overflowing.
func (w Window) LenAtMost(n int) bool {
	if w.IMax < w.IMin || w.JMax < w.JMin {
		return true
	}
	rows := uint64(w.IMax) - uint64(w.IMin) + 1
	cols := uint64(w.JMax) - uint64(w.JMin) + 1
	if n < 0 || rows > uint64(n) || cols > uint64(n) {
		return false
	}
	return rows <= uint64(n)/cols
}

// Each visits indices row by row, i ascending then j ascending.
func (w Window) Each(fn func(CellIndex)) {
	for i := w.IMin; i <= w.IMax; i++ {
		for j := w.JMin; j <= w.JMax; j++ {
			fn(CellIndex{I: i, J: j})
		}
	}
}

// Mapper converts between geographic coordinates and cell indices relative to a fixed origin.
// Changing Origin or TileDegrees invalidates every persisted index.
type Mapper struct {
	Origin      LatLng
	TileDegrees float64
}

func NewMapper(origin LatLng, tileDegrees float64) Mapper {
	if tileDegrees <= 0 {
		tileDegrees = 1e-4
	}
	return Mapper{Origin: origin, TileDegrees: tileDegrees}
}

func (m Mapper) IndexForLatitude(lat float64) int {
	return mathx.FloorIndex(lat-m.Origin.Lat, m.TileDegrees)
}

func (m Mapper) IndexForLongitude(lng float64) int {
	return mathx.FloorIndex(lng-m.Origin.Lng, m.TileDegrees)
}

func (m Mapper) IndexFor(p LatLng) CellIndex {
	return CellIndex{I: m.IndexForLatitude(p.Lat), J: m.IndexForLongitude(p.Lng)}
}

// BoundsForIndex returns the half-open cell rectangle. South and West are the smallest
// coordinates that IndexFor maps to c, so the edges agree with IndexFor exactly.
func (m Mapper) BoundsForIndex(c CellIndex) Rect {
	return Rect{
		South: lowerEdge(m.Origin.Lat, m.TileDegrees, c.I, m.IndexForLatitude),
		West:  lowerEdge(m.Origin.Lng, m.TileDegrees, c.J, m.IndexForLongitude),
		North: lowerEdge(m.Origin.Lat, m.TileDegrees, c.I+1, m.IndexForLatitude),
		East:  lowerEdge(m.Origin.Lng, m.TileDegrees, c.J+1, m.IndexForLongitude),
	}
}

// lowerEdge corrects origin+i*tile by a few ulps until it is the least value with
// index(v) == i. Rounding in the product or the division can leave it off by one cell.
func lowerEdge(origin, tile float64, i int, index func(float64) int) float64 {
	const maxSteps = 64
	e := origin + float64(i)*tile
	for n := 0; n < maxSteps && index(e) < i; n++ {
		e = math.Nextafter(e, math.Inf(1))
	}
	for n := 0; n < maxSteps; n++ {
		below := math.Nextafter(e, math.Inf(-1))
		if index(below) < i {
			break
		}
		e = below
	}
	return e
}

func (m Mapper) CenterOf(c CellIndex) LatLng {
	return m.BoundsForIndex(c).Center()
}

// WindowForViewport returns the indices under the viewport's corners, widened by padding tiles.
func (m Mapper) WindowForViewport(r Rect, padding int) Window {
	if padding < 0 {
		padding = 0
	}
	return Window{
		IMin: m.IndexForLatitude(r.South) - padding,
		IMax: m.IndexForLatitude(r.North) + padding,
		JMin: m.IndexForLongitude(r.West) - padding,
		JMax: m.IndexForLongitude(r.East) + padding,
	}
}

// Distance is the great-circle (haversine) distance in meters.
func Distance(a, b LatLng) float64 {
	const rad = math.Pi / 180
	lat1 := a.Lat * rad
	lat2 := b.Lat * rad
	sinDLat := math.Sin((b.Lat - a.Lat) * rad / 2)
	sinDLng := math.Sin((b.Lng - a.Lng) * rad / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLng*sinDLng
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// OffsetNorth returns p moved meters due north (negative for south) along its meridian.
func OffsetNorth(p LatLng, meters float64) LatLng {
	return LatLng{Lat: p.Lat + meters/EarthRadiusMeters*180/math.Pi, Lng: p.Lng}
}
