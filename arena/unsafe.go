package arena

import "unsafe"

// ptrOf returns the address of a slice's backing array. Returns nil for an
// empty slice, same as &b[0] would panic on.
func ptrOf(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
