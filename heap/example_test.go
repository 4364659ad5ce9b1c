package heap

import (
	"fmt"

	"github.com/Jinwooooo/malloc-lab/arena"
)

func Example() {
	ar, _ := arena.New(64 * 1024)
	a, _ := New(ar)

	b1 := a.Allocate(24) // rounds up to a 32-byte block
	b2 := a.Allocate(100)

	fmt.Printf("b1: len=%d cap=%d\n", len(b1), cap(b1))
	fmt.Printf("b2: len=%d cap=%d\n", len(b2), cap(b2))

	a.Free(b1)
	r := a.Reallocate(b2, 50)
	fmt.Printf("r: len=%d\n", len(r))

	a.Free(r)

	// Output:
	// b1: len=24 cap=24
	// b2: len=100 cap=104
	// r: len=50
}
