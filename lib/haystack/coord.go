package haystack

import "strconv"

// Coord is a geographic latitude/longitude pair in decimal degrees.
type Coord struct {
	Lat float64
	Lng float64
}

func (Coord) Kind() Kind { return KindCoord }

func (c Coord) eq(o Val) bool { return c == o.(Coord) }

func (c Coord) String() string {
	return "C(" + strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," +
		strconv.FormatFloat(c.Lng, 'f', -1, 64) + ")"
}
