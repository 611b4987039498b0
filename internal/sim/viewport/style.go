package viewport

import "worldofbits.app/internal/sim/cellstore"

const (
	EmptyFill     = "#ffffff"
	UnknownFill   = "#dddddd"
	BorderColor   = "#333"
	BorderWeight  = 1
	EmptyOpacity  = 0.06
	TokenOpacity  = 0.8
	MergedOpacity = 0.9
)

var tokenColors = map[int]string{
	2:    "#f7d794",
	4:    "#ffd166",
	8:    "#ff9f1c",
	16:   "#ff6b6b",
	32:   "#ff4d94",
	64:   "#c77dff",
	128:  "#7f5af0",
	256:  "#4cc9f0",
	512:  "#00b4d8",
	1024: "#2ec4b6",
	2048: "#2b9348",
}

// Style is how the renderer should paint a cell overlay.
type Style struct {
	Fill        string  `json:"fill"`
	FillOpacity float64 `json:"fill_opacity"`
	Border      string  `json:"border"`
	Weight      int     `json:"weight"`
}

// ColorForToken returns the table colour, halving values off the table until one matches.
func ColorForToken(v int) string {
	if v <= 0 {
		return "#eeeeee"
	}
	for v > 1 {
		if c, ok := tokenColors[v]; ok {
			return c
		}
		v /= 2
	}
	return UnknownFill
}

func StyleFor(st cellstore.CellState) Style {
	if !st.TokenPresent {
		return Style{Fill: EmptyFill, FillOpacity: EmptyOpacity, Border: BorderColor, Weight: BorderWeight}
	}
	return Style{Fill: ColorForToken(st.TokenValue), FillOpacity: TokenOpacity, Border: BorderColor, Weight: BorderWeight}
}

// MergedStyle is StyleFor with the brighter opacity used right after a merge.
func MergedStyle(st cellstore.CellState) Style {
	s := StyleFor(st)
	if st.TokenPresent {
		s.FillOpacity = MergedOpacity
	}
	return s
}
