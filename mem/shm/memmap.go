package shm

// MapFlags select the protection of a mapping.
type MapFlags uint32

// Map flags.
const (
	MapRead MapFlags = 1 << iota
	MapWrite
	// MapPrivate creates a copy-on-write mapping that is never shared with
	// other MemMaps.
	MapPrivate

	MapReadWrite = MapRead | MapWrite
)

// Tag is an opaque identity attached to a MemMap so that a peer can find the
// mapping again by value.
type Tag [5]uint32

// Mapping is one OS memory map of a page-aligned range of a Block.
type Mapping struct {
	block  *Block
	offset uint64
	size   uint64
	flags  MapFlags
	data   []byte
	refs   int
}

// Offset returns the page-aligned start of the mapping in the block.
func (m *Mapping) Offset() uint64 { return m.offset }

// Size returns the mapped byte count.
func (m *Mapping) Size() uint64 { return m.size }

// Refs returns the number of MemMaps using the mapping.
func (m *Mapping) Refs() int { return m.refs }

func (m *Mapping) covers(start, end uint64, flags MapFlags) bool {
	if m.flags&MapPrivate != 0 || flags&MapPrivate != 0 {
		return false
	}

	if m.flags&flags != flags {
		return false
	}

	return m.offset <= start && m.offset+m.size >= end
}

// MemMap is a caller-visible handle on a byte range of a Block.
type MemMap struct {
	block   *Block
	mapping *Mapping
	flags   MapFlags
	offset  uint64
	size    uint64
	tag     Tag
	data    []byte
	freed   bool
}

// Block returns the mapped block.
func (m *MemMap) Block() *Block { return m.block }

// Offset returns the requested offset in the block.
func (m *MemMap) Offset() uint64 { return m.offset }

// Size returns the requested byte count.
func (m *MemMap) Size() uint64 { return m.size }

// Flags returns the map flags.
func (m *MemMap) Flags() MapFlags { return m.flags }

// Tag returns the identity tag.
func (m *MemMap) Tag() Tag { return m.tag }

// Mapping returns the backing mapping.
func (m *MemMap) Mapping() *Mapping { return m.mapping }

// Bytes returns the mapped range. It is nil once the MemMap was freed or
// its block destroyed.
func (m *MemMap) Bytes() []byte { return m.data }

// Valid reports whether the memory behind the MemMap is still mapped.
func (m *MemMap) Valid() bool { return !m.freed }

// Free releases the MemMap. The mapping is unmapped when no other MemMap
// uses it.
func (m *MemMap) Free() error {
	p := m.block.pool

	p.lock.Lock()
	defer p.lock.Unlock()

	return p.freeMemMapLocked(m)
}
