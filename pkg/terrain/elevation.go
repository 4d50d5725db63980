package terrain

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// gridLayout describes a global, node-registered raster of little-endian
// int16 heights stored row-major from the north pole down.
type gridLayout struct {
	rows, cols int
	perDegree  float64
}

func (g gridLayout) size() int64 { return int64(g.rows) * int64(g.cols) * 2 }

// etopo1 is the one arc-minute ice-surface grid (etopo1_ice_g_i2.bin).
var etopo1 = gridLayout{rows: 10801, cols: 21601, perDegree: 60}

// ETOPO1Provider answers elevation queries from a local ETOPO1 grid file,
// interpolating bilinearly between the four surrounding nodes. The file is
// read with ReadAt, so one handle serves concurrent queries.
type ETOPO1Provider struct {
	file   *os.File
	layout gridLayout
}

// NewETOPO1Provider opens the ETOPO1 binary file.
func NewETOPO1Provider(path string) (*ETOPO1Provider, error) {
	return openGrid(path, etopo1)
}

func openGrid(path string, layout gridLayout) (*ETOPO1Provider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() != layout.size() {
		f.Close()
		return nil, fmt.Errorf("invalid ETOPO1 file size: expected %d, got %d", layout.size(), info.Size())
	}
	return &ETOPO1Provider{file: f, layout: layout}, nil
}

// Close closes the file handle.
func (e *ETOPO1Provider) Close() error {
	return e.file.Close()
}

// QueryElevation returns the interpolated elevation in meters at lon/lat.
func (e *ETOPO1Provider) QueryElevation(ctx context.Context, lon, lat float64) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	if lat > 90 || lat < -90 || lon > 180 || lon < -180 {
		return 0, false, fmt.Errorf("coordinates out of bounds: lat %f, lon %f", lat, lon)
	}

	l := e.layout
	y := (90 - lat) * l.perDegree
	x := (lon + 180) * l.perDegree
	r0 := min(int(y), l.rows-2)
	c0 := min(int(x), l.cols-2)
	fy, fx := y-float64(r0), x-float64(c0)

	top, err := e.pair(r0, c0)
	if err != nil {
		return 0, false, err
	}
	bottom, err := e.pair(r0+1, c0)
	if err != nil {
		return 0, false, err
	}

	north := top[0] + (top[1]-top[0])*fx
	south := bottom[0] + (bottom[1]-bottom[0])*fx
	v := north + (south-north)*fy
	return math.Round(v*100) / 100, true, nil
}

// pair reads the nodes at (row, col) and (row, col+1).
func (e *ETOPO1Provider) pair(row, col int) ([2]float64, error) {
	var buf [4]byte
	off := (int64(row)*int64(e.layout.cols) + int64(col)) * 2
	if _, err := e.file.ReadAt(buf[:], off); err != nil {
		return [2]float64{}, fmt.Errorf("read elevation node %d,%d: %w", row, col, err)
	}
	return [2]float64{
		float64(int16(binary.LittleEndian.Uint16(buf[0:2]))),
		float64(int16(binary.LittleEndian.Uint16(buf[2:4]))),
	}, nil
}
