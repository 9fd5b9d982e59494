//go:build !linux

package mmio

import "errors"

// Region is provided for non-linux builds so dependent code can compile.
type Region struct{}

// ErrUnsupported is returned by MapRegion on platforms without device
// memory mapping support.
var ErrUnsupported = errors.New("mmio: device mapping not supported on this platform")

// MapRegion is unavailable off linux; use a serial probe or the sim
// package instead.
func MapRegion(path string, offset int64, size int) (*Region, error) {
	return nil, ErrUnsupported
}

func (r *Region) Load(off uint32) uint32     { return OpenBus }
func (r *Region) Store(off uint32, v uint32) {}
func (r *Region) Close() error               { return nil }
