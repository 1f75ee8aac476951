package grid

// Pack encodes a cell coordinate into a single map key. Both halves keep their
// full 32-bit signed range, so negative coordinates round-trip.
func Pack(x, y int) int64 {
	return int64(x)<<32 | int64(uint32(int32(y)))
}

// Unpack is the inverse of Pack.
func Unpack(key int64) (x, y int) {
	return int(int32(key >> 32)), int(int32(key))
}
