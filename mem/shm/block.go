// Package shm implements the shared-memory pool that backs every buffer in
// the graph.
//
// A Pool is an arena of Blocks indexed by small integer ids. Each Block is a
// descriptor-backed memory object; Mappings are the actual OS maps of a page
// range of a Block and MemMaps are the caller-visible handles into them.
// Blocks can be exported as a Descriptor and imported into another Pool, in
// this process or in a peer, without copying any bytes.
//
// All mutating operations belong to the control context. The data context
// only dereferences MemMap bytes that were established ahead of time.
package shm

import "fmt"

// Flags describe a Block.
type Flags uint32

// Block flags.
const (
	FlagReadable Flags = 1 << iota
	FlagWritable
	// FlagSeal seals the size of an allocated block.
	FlagSeal
	// FlagMap maps the whole block once at allocation or import.
	FlagMap
	// FlagDontClose keeps the descriptor open when the block is destroyed.
	FlagDontClose
	// FlagUnmappable forbids mapping the block in this pool.
	FlagUnmappable

	FlagReadWrite = FlagReadable | FlagWritable
)

func (f Flags) String() string {
	names := []string{"r", "w", "seal", "map", "dontclose", "unmappable"}
	s := ""
	for i, n := range names {
		if f&(1<<i) != 0 {
			if s != "" {
				s += "|"
			}
			s += n
		}
	}

	if s == "" {
		return "none"
	}

	return s
}

// Ownership tells whether the pool owns the block descriptor.
type Ownership int

const (
	// Owned blocks hold their own descriptor and close it on destruction
	// unless FlagDontClose is set.
	Owned Ownership = iota

	// Borrowed blocks use a descriptor owned by another block (their owner)
	// and never close it.
	Borrowed
)

func (o Ownership) String() string {
	if o == Borrowed {
		return "borrowed"
	}

	return "owned"
}

// BlockRef names a block by pool and id. Ownership chains are kept as
// BlockRefs rather than pointers so that a freed block can never be reached
// through a stale link.
type BlockRef struct {
	Pool *Pool
	ID   uint32
}

// IsZero reports whether the reference is empty.
func (r BlockRef) IsZero() bool {
	return r.Pool == nil
}

func (r BlockRef) String() string {
	if r.Pool == nil {
		return "<none>"
	}

	return fmt.Sprintf("%s/%d", r.Pool.Name(), r.ID)
}

type fileID struct {
	dev uint64
	ino uint64
}

// Block is a reference-counted, descriptor-backed memory object.
type Block struct {
	pool      *Pool
	id        uint32
	fd        int
	size      uint64
	flags     Flags
	refs      int
	ownership Ownership
	identity  fileID

	owner     BlockRef
	importers []BlockRef

	mappings []*Mapping
	memmaps  []*MemMap
	whole    *MemMap

	invalidated bool
	destroyed   bool
}

// Pool returns the pool the block lives in.
func (b *Block) Pool() *Pool { return b.pool }

// ID returns the id of the block inside its pool.
func (b *Block) ID() uint32 { return b.id }

// FD returns the descriptor, or -1 once the block has been invalidated.
func (b *Block) FD() int { return b.fd }

// Size returns the byte size of the block.
func (b *Block) Size() uint64 { return b.size }

// Flags returns the block flags.
func (b *Block) Flags() Flags { return b.flags }

// Ownership returns whether the pool owns the descriptor.
func (b *Block) Ownership() Ownership { return b.ownership }

// Refs returns the current reference count.
func (b *Block) Refs() int {
	b.pool.lock.Lock()
	defer b.pool.lock.Unlock()

	return b.refs
}

// Owner returns the root owner of an imported block.
func (b *Block) Owner() (BlockRef, bool) {
	return b.owner, !b.owner.IsZero()
}

// Invalidated reports whether the owner of the block went away.
func (b *Block) Invalidated() bool {
	b.pool.lock.Lock()
	defer b.pool.lock.Unlock()

	return b.invalidated
}

// Ref takes one more reference on the block.
func (b *Block) Ref() *Block {
	b.pool.lock.Lock()
	defer b.pool.lock.Unlock()

	b.refs++

	return b
}

// Mapped returns the whole-block map created by FlagMap, if any.
func (b *Block) Mapped() *MemMap {
	return b.whole
}

// Descriptor is everything a peer needs to rebuild a block.
type Descriptor struct {
	FD    int
	Size  uint64
	Flags Flags
}

// Export describes the block for another pool.
func (b *Block) Export() Descriptor {
	return Descriptor{
		FD:    b.fd,
		Size:  b.size,
		Flags: b.flags &^ (FlagMap | FlagDontClose),
	}
}

func (b *Block) String() string {
	return fmt.Sprintf("block %s/%d fd %d size %d flags %s",
		b.pool.Name(), b.id, b.fd, b.size, b.flags)
}
