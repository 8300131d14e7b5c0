//go:build !linux

package shm

func createAnonymous(name string, size uint64, _ bool) (int, error) {
	return createTempFile(name, size)
}

// Sealed reports whether the size of the block is sealed. Seals are only
// available with memfd.
func (b *Block) Sealed() bool {
	return false
}
