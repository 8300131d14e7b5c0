package shm

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/sarchlab/mediagraph/idgen"
	"github.com/sarchlab/mediagraph/instrumentation/hooking"
	"github.com/sarchlab/mediagraph/logging"
	"github.com/sarchlab/mediagraph/result"
)

var (
	// HookPosBlockAdded fires after a block enters the pool.
	HookPosBlockAdded = &hooking.HookPos{Name: "Block Added"}

	// HookPosBlockRemoved fires when a block reaches zero references, before
	// its mappings and descriptor are released.
	HookPosBlockRemoved = &hooking.HookPos{Name: "Block Removed"}

	// HookPosBlockInvalidated fires when the owner of an imported block goes
	// away.
	HookPosBlockInvalidated = &hooking.HookPos{Name: "Block Invalidated"}
)

// ErrOutOfBounds is returned when a mapping request exceeds the block.
var ErrOutOfBounds = fmt.Errorf("%w: range out of bounds", result.ErrInvalidArgument)

// Pool is an arena of shared memory blocks.
type Pool struct {
	*hooking.HookableBase

	lock       sync.Mutex
	name       string
	logger     logging.Logger
	blocks     *idgen.FreeList[*Block]
	byIdentity map[fileID]*Block
	closed     bool
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// Alloc creates a new anonymous block of the given size.
func (p *Pool) Alloc(flags Flags, size uint64) (*Block, error) {
	if size == 0 {
		return nil, fmt.Errorf("alloc: zero size: %w", result.ErrInvalidArgument)
	}

	fd, err := createAnonymous(p.name, size, flags&FlagSeal != 0)
	if err != nil {
		return nil, fmt.Errorf("alloc %d bytes: %w", size, err)
	}

	id, err := identify(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	b := &Block{
		pool:      p,
		fd:        fd,
		size:      size,
		flags:     flags,
		refs:      1,
		ownership: Owned,
		identity:  id,
	}

	if err := p.insert(b, true); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	if err := p.mapWhole(b); err != nil {
		_ = p.Free(b)
		return nil, err
	}

	return b, nil
}

// Import wraps a foreign descriptor. Importing a descriptor that refers to a
// file already in the pool returns that block with one more reference. The
// pool keeps its own duplicate of the descriptor unless FlagDontClose is set,
// in which case the caller's descriptor is used as is and never closed.
func (p *Pool) Import(flags Flags, fd int) (*Block, error) {
	if fd < 0 {
		return nil, fmt.Errorf("import fd %d: %w", fd, result.ErrInvalidArgument)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("import fd %d: %w", fd, err)
	}

	id := fileID{dev: uint64(st.Dev), ino: uint64(st.Ino)}

	p.lock.Lock()
	if existing, ok := p.byIdentity[id]; ok && !existing.destroyed {
		existing.refs++
		p.lock.Unlock()

		return existing, nil
	}
	p.lock.Unlock()

	ownFD := fd
	if flags&FlagDontClose == 0 {
		dup, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
		if err != nil {
			return nil, fmt.Errorf("import fd %d: dup: %w", fd, err)
		}
		ownFD = dup
	}

	b := &Block{
		pool:      p,
		fd:        ownFD,
		size:      uint64(st.Size),
		flags:     flags,
		refs:      1,
		ownership: Owned,
		identity:  id,
	}

	if err := p.insert(b, true); err != nil {
		p.closeFD(b)
		return nil, err
	}

	if err := p.mapWhole(b); err != nil {
		_ = p.Free(b)
		return nil, err
	}

	return b, nil
}

// ImportDescriptor imports a block exported by a peer.
func (p *Pool) ImportDescriptor(d Descriptor) (*Block, error) {
	b, err := p.Import(d.Flags, d.FD)
	if err != nil {
		return nil, err
	}

	if b.size < d.Size {
		_ = p.Free(b)
		return nil, fmt.Errorf("import: descriptor size %d exceeds file size %d: %w",
			d.Size, b.size, ErrOutOfBounds)
	}

	return b, nil
}

// ImportBlock imports a block of another pool of this process. The new block
// borrows the descriptor of the root owner and becomes invalid when the
// owner is destroyed.
func (p *Pool) ImportBlock(flags Flags, from *Block) (*Block, error) {
	if from == nil {
		return nil, fmt.Errorf("import block: %w", result.ErrInvalidArgument)
	}

	root := BlockRef{Pool: from.pool, ID: from.id}
	if owner, ok := from.Owner(); ok {
		root = owner
	}

	if root.Pool == p {
		b, ok := p.FindID(root.ID)
		if !ok {
			return nil, fmt.Errorf("import block %s: %w", root, result.ErrNotFound)
		}

		return b.Ref(), nil
	}

	rootBlock, ok := root.Pool.FindID(root.ID)
	if !ok || rootBlock.Invalidated() {
		return nil, fmt.Errorf("import block %s: %w", root, result.ErrAccess)
	}

	b := &Block{
		pool:      p,
		fd:        rootBlock.fd,
		size:      rootBlock.size,
		flags:     flags | FlagDontClose,
		refs:      1,
		ownership: Borrowed,
		identity:  rootBlock.identity,
		owner:     root,
	}

	if err := p.insert(b, false); err != nil {
		return nil, err
	}

	if !root.Pool.addImporter(root.ID, BlockRef{Pool: p, ID: b.id}) {
		p.invalidate(b.id)
	}

	if err := p.mapWhole(b); err != nil {
		_ = p.Free(b)
		return nil, err
	}

	return b, nil
}

func (p *Pool) insert(b *Block, indexIdentity bool) error {
	p.lock.Lock()

	if p.closed {
		p.lock.Unlock()
		return fmt.Errorf("pool %s closed: %w", p.name, result.ErrIO)
	}

	b.id = p.blocks.Insert(b)
	if indexIdentity {
		p.byIdentity[b.identity] = b
	}

	p.lock.Unlock()

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    HookPosBlockAdded,
		Item:   b,
	})

	return nil
}

func (p *Pool) mapWhole(b *Block) error {
	if b.flags&FlagMap == 0 || b.flags&FlagUnmappable != 0 {
		return nil
	}

	var flags MapFlags
	if b.flags&FlagReadable != 0 {
		flags |= MapRead
	}
	if b.flags&FlagWritable != 0 {
		flags |= MapWrite
	}

	m, err := p.Map(b, flags, 0, b.size, Tag{})
	if err != nil {
		return err
	}

	b.whole = m

	return nil
}

// FindID returns the live block with the given id.
func (p *Pool) FindID(id uint32) (*Block, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	b, ok := p.blocks.Lookup(id)
	if !ok || b.destroyed {
		return nil, false
	}

	return b, true
}

// FindFD returns the live block using the given descriptor.
func (p *Pool) FindFD(fd int) (*Block, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	var found *Block
	p.blocks.Each(func(_ uint32, b *Block) bool {
		if b.fd == fd && !b.destroyed {
			found = b
			return false
		}
		return true
	})

	return found, found != nil
}

// FindTag returns the MemMap carrying the given tag.
func (p *Pool) FindTag(tag Tag) (*MemMap, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	var found *MemMap
	p.blocks.Each(func(_ uint32, b *Block) bool {
		for _, m := range b.memmaps {
			if m.tag == tag {
				found = m
				return false
			}
		}
		return true
	})

	return found, found != nil
}

// Blocks returns a snapshot of the live blocks, in id order.
func (p *Pool) Blocks() []*Block {
	p.lock.Lock()
	defer p.lock.Unlock()

	blocks := make([]*Block, 0, p.blocks.Len())
	p.blocks.Each(func(_ uint32, b *Block) bool {
		blocks = append(blocks, b)
		return true
	})

	return blocks
}

// Stats summarizes pool usage.
type Stats struct {
	Blocks      int    `json:"blocks"`
	Mappings    int    `json:"mappings"`
	MemMaps     int    `json:"memmaps"`
	MappedBytes uint64 `json:"mapped_bytes"`
}

// Stats returns the current usage of the pool.
func (p *Pool) Stats() Stats {
	p.lock.Lock()
	defer p.lock.Unlock()

	s := Stats{Blocks: p.blocks.Len()}
	p.blocks.Each(func(_ uint32, b *Block) bool {
		s.Mappings += len(b.mappings)
		s.MemMaps += len(b.memmaps)
		for _, m := range b.mappings {
			s.MappedBytes += m.size
		}
		return true
	})

	return s
}

// MapID maps a range of the block with the given id.
func (p *Pool) MapID(
	id uint32,
	flags MapFlags,
	offset, size uint64,
	tag Tag,
) (*MemMap, error) {
	b, ok := p.FindID(id)
	if !ok {
		return nil, fmt.Errorf("map block %d: %w", id, result.ErrNotFound)
	}

	return p.Map(b, flags, offset, size, tag)
}

// Map maps [offset, offset+size) of a block. An existing mapping that covers
// the page range is reused.
func (p *Pool) Map(
	b *Block,
	flags MapFlags,
	offset, size uint64,
	tag Tag,
) (*MemMap, error) {
	if b == nil || b.pool != p || size == 0 {
		return nil, fmt.Errorf("map: %w", result.ErrInvalidArgument)
	}

	if flags&MapReadWrite == 0 {
		flags |= MapRead
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.mustBeMappable(b, flags); err != nil {
		return nil, err
	}

	end := offset + size
	if end < offset {
		return nil, fmt.Errorf("map %d+%d: %w", offset, size, ErrOutOfBounds)
	}

	var st unix.Stat_t
	if err := unix.Fstat(b.fd, &st); err != nil {
		return nil, fmt.Errorf("map %s: %w", b, err)
	}

	if end > uint64(st.Size) {
		return nil, fmt.Errorf("map %d+%d of %d bytes: %w",
			offset, size, st.Size, ErrOutOfBounds)
	}

	pageSize := uint64(unix.Getpagesize())
	start := offset / pageSize * pageSize
	stop := (end + pageSize - 1) / pageSize * pageSize

	mapping := findMapping(b, start, stop, flags)
	if mapping == nil {
		var err error
		mapping, err = newMapping(b, flags, start, stop-start)
		if err != nil {
			return nil, err
		}
		b.mappings = append(b.mappings, mapping)
	}

	mapping.refs++

	rel := offset - mapping.offset
	m := &MemMap{
		block:   b,
		mapping: mapping,
		flags:   flags,
		offset:  offset,
		size:    size,
		tag:     tag,
		data:    mapping.data[rel : rel+size : rel+size],
	}
	b.memmaps = append(b.memmaps, m)

	return m, nil
}

func (p *Pool) mustBeMappable(b *Block, flags MapFlags) error {
	switch {
	case b.destroyed:
		return fmt.Errorf("map %s: destroyed: %w", b, result.ErrNotFound)
	case b.invalidated || b.fd < 0:
		return fmt.Errorf("map %s: owner gone: %w", b, result.ErrAccess)
	case b.flags&FlagUnmappable != 0:
		return fmt.Errorf("map %s: unmappable: %w", b, result.ErrAccess)
	case flags&MapRead != 0 && b.flags&FlagReadable == 0:
		return fmt.Errorf("map %s: not readable: %w", b, result.ErrAccess)
	case flags&MapWrite != 0 && flags&MapPrivate == 0 &&
		b.flags&FlagWritable == 0:
		return fmt.Errorf("map %s: not writable: %w", b, result.ErrAccess)
	}

	return nil
}

func findMapping(b *Block, start, stop uint64, flags MapFlags) *Mapping {
	for _, m := range b.mappings {
		if m.covers(start, stop, flags) {
			return m
		}
	}

	return nil
}

func newMapping(b *Block, flags MapFlags, offset, size uint64) (*Mapping, error) {
	prot := 0
	if flags&MapRead != 0 {
		prot |= unix.PROT_READ
	}
	if flags&MapWrite != 0 {
		prot |= unix.PROT_WRITE
	}

	share := unix.MAP_SHARED
	if flags&MapPrivate != 0 {
		share = unix.MAP_PRIVATE
	}

	data, err := unix.Mmap(b.fd, int64(offset), int(size), prot, share)
	if err != nil {
		return nil, fmt.Errorf("mmap %s at %d+%d: %w", b, offset, size, err)
	}

	return &Mapping{
		block:  b,
		offset: offset,
		size:   size,
		flags:  flags,
		data:   data,
	}, nil
}

func (p *Pool) freeMemMapLocked(m *MemMap) error {
	if m.freed {
		return nil
	}

	b := m.block
	m.freed = true
	m.data = nil

	for i, mm := range b.memmaps {
		if mm == m {
			b.memmaps = append(b.memmaps[:i], b.memmaps[i+1:]...)
			break
		}
	}

	if b.whole == m {
		b.whole = nil
	}

	mapping := m.mapping
	mapping.refs--
	if mapping.refs > 0 {
		return nil
	}

	return unmap(b, mapping)
}

func unmap(b *Block, mapping *Mapping) error {
	for i, mp := range b.mappings {
		if mp == mapping {
			b.mappings = append(b.mappings[:i], b.mappings[i+1:]...)
			break
		}
	}

	data := mapping.data
	mapping.data = nil
	mapping.refs = 0

	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap %s: %w", b, err)
	}

	return nil
}

// Free drops one reference. At zero the block is announced as removed, its
// mappings are released, its descriptor is closed (unless it is borrowed or
// marked FlagDontClose) and every block importing it is invalidated.
func (p *Pool) Free(b *Block) error {
	if b == nil || b.pool != p {
		return fmt.Errorf("free: %w", result.ErrInvalidArgument)
	}

	p.lock.Lock()
	if b.destroyed {
		p.lock.Unlock()
		return fmt.Errorf("free %s: %w", b, result.ErrNotFound)
	}

	b.refs--
	if b.refs > 0 {
		p.lock.Unlock()
		return nil
	}

	b.destroyed = true
	p.blocks.Remove(b.id)
	if p.byIdentity[b.identity] == b {
		delete(p.byIdentity, b.identity)
	}
	p.lock.Unlock()

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    HookPosBlockRemoved,
		Item:   b,
	})

	return p.destroy(b)
}

func (p *Pool) destroy(b *Block) error {
	p.lock.Lock()

	var firstErr error
	if b.whole != nil {
		firstErr = p.freeMemMapLocked(b.whole)
	}

	for _, m := range b.memmaps {
		m.freed = true
		m.data = nil
	}
	b.memmaps = nil

	for len(b.mappings) > 0 {
		mapping := b.mappings[0]
		p.logger.Warn("stray mapping at block destruction",
			"block", b.id, "offset", mapping.offset,
			"size", mapping.size, "refs", mapping.refs)

		if err := unmap(b, mapping); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	importers := b.importers
	b.importers = nil
	owner := b.owner

	p.closeFD(b)
	p.lock.Unlock()

	for _, ref := range importers {
		ref.Pool.invalidate(ref.ID)
	}

	if !owner.IsZero() {
		owner.Pool.removeImporter(owner.ID, BlockRef{Pool: p, ID: b.id})
	}

	return firstErr
}

func (p *Pool) closeFD(b *Block) {
	if b.ownership == Owned && b.flags&FlagDontClose == 0 && b.fd >= 0 {
		if err := unix.Close(b.fd); err != nil {
			p.logger.Warn("close block fd", "block", b.id, "fd", b.fd,
				"error", err)
		}
	}

	b.fd = -1
}

func (p *Pool) addImporter(id uint32, ref BlockRef) bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	b, ok := p.blocks.Lookup(id)
	if !ok || b.destroyed || b.invalidated {
		return false
	}

	b.importers = append(b.importers, ref)

	return true
}

func (p *Pool) removeImporter(id uint32, ref BlockRef) {
	p.lock.Lock()
	defer p.lock.Unlock()

	b, ok := p.blocks.Lookup(id)
	if !ok {
		return
	}

	for i, r := range b.importers {
		if r == ref {
			b.importers = append(b.importers[:i], b.importers[i+1:]...)
			return
		}
	}
}

// invalidate zeroes the descriptor of a borrowed block whose owner is gone.
// Established mappings keep the memory alive; new maps fail.
func (p *Pool) invalidate(id uint32) {
	p.lock.Lock()

	b, ok := p.blocks.Lookup(id)
	if !ok || b.destroyed || b.invalidated {
		p.lock.Unlock()
		return
	}

	b.invalidated = true
	b.fd = -1
	b.owner = BlockRef{}
	p.lock.Unlock()

	p.logger.Debug("block invalidated", "block", id)

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    HookPosBlockInvalidated,
		Item:   b,
	})
}

// Close frees every block regardless of its reference count. Blocks that are
// still referenced are reported as strays.
func (p *Pool) Close() error {
	p.lock.Lock()
	p.closed = true
	blocks := make([]*Block, 0, p.blocks.Len())
	p.blocks.Each(func(_ uint32, b *Block) bool {
		blocks = append(blocks, b)
		return true
	})
	p.lock.Unlock()

	var firstErr error
	for _, b := range blocks {
		p.lock.Lock()
		if b.refs > 1 {
			p.logger.Warn("stray block at pool close",
				"block", b.id, "refs", b.refs)
		}
		b.refs = 1
		p.lock.Unlock()

		if err := p.Free(b); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
