package jdwp

import (
	"fmt"
	"sync"
)

// MirrorKind identifies the kind of remote entity a mirror stands for.
type MirrorKind uint8

const (
	KindThread MirrorKind = iota + 1
	KindThreadGroup
	KindType
	KindObject
	KindArray
	KindString
	KindClassLoader
	KindClassObject
)

func (k MirrorKind) String() string {
	switch k {
	case KindThread:
		return "thread"
	case KindThreadGroup:
		return "thread group"
	case KindType:
		return "type"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindClassLoader:
		return "class loader"
	case KindClassObject:
		return "class object"
	}
	return fmt.Sprintf("MirrorKind(%d)", uint8(k))
}

// kindForTag maps an object value tag to the mirror kind that represents it.
func kindForTag(t Tag) MirrorKind {
	switch t {
	case TagArray:
		return KindArray
	case TagString:
		return KindString
	case TagThread:
		return KindThread
	case TagThreadGroup:
		return KindThreadGroup
	case TagClassLoader:
		return KindClassLoader
	case TagClassObject:
		return KindClassObject
	}
	return KindObject
}

// Mirror is a local stand-in for a remote entity. For a given kind and ID
// a connection hands out one mirror instance until the entity is evicted.
type Mirror interface {
	Kind() MirrorKind
	mirrorID() uint64
}

type cacheKey struct {
	kind MirrorKind
	id   uint64
}

// Cache maps remote identifiers to mirrors for one connection.
type Cache struct {
	conn *Conn

	mu      sync.RWMutex
	mirrors map[cacheKey]Mirror
	// bySig indexes type mirrors by signature so unload events, which carry
	// only a signature, can evict them.
	bySig map[string]map[ReferenceTypeID]struct{}
}

func newCache(c *Conn) *Cache {
	return &Cache{
		conn:    c,
		mirrors: make(map[cacheKey]Mirror),
		bySig:   make(map[string]map[ReferenceTypeID]struct{}),
	}
}

// Resolve returns the mirror for (kind, id), creating it on first use.
func (c *Cache) Resolve(kind MirrorKind, id uint64) Mirror {
	key := cacheKey{kind, id}
	c.mu.RLock()
	m, ok := c.mirrors[key]
	c.mu.RUnlock()
	if ok {
		return m
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.mirrors[key]; ok {
		return m
	}
	m = c.newMirror(kind, id, 0)
	c.mirrors[key] = m
	return m
}

// typeMirror is Resolve for reference types, recording the type tag when the
// mirror is created.
func (c *Cache) typeMirror(tag TypeTag, id ReferenceTypeID) *TypeMirror {
	key := cacheKey{KindType, uint64(id)}
	c.mu.RLock()
	m, ok := c.mirrors[key]
	c.mu.RUnlock()
	if ok {
		return m.(*TypeMirror)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.mirrors[key]; ok {
		return m.(*TypeMirror)
	}
	t := c.newMirror(KindType, uint64(id), tag).(*TypeMirror)
	c.mirrors[key] = t
	return t
}

func (c *Cache) newMirror(kind MirrorKind, id uint64, tag TypeTag) Mirror {
	ref := objectRef{conn: c.conn, id: ObjectID(id)}
	switch kind {
	case KindThread:
		t := &ThreadMirror{objectRef: ref}
		// A thread first seen while the VM is suspended is suspended too.
		t.suspended.Store(c.conn.vmSuspended.Load())
		return t
	case KindThreadGroup:
		return &ThreadGroupMirror{objectRef: ref}
	case KindType:
		return &TypeMirror{conn: c.conn, id: ReferenceTypeID(id), tag: tag}
	case KindArray:
		return &ArrayMirror{objectRef: ref}
	case KindString:
		return &StringMirror{objectRef: ref}
	case KindClassLoader:
		return &ClassLoaderMirror{objectRef: ref}
	case KindClassObject:
		return &ClassObjectMirror{objectRef: ref}
	}
	return &ObjectMirror{objectRef: ref}
}

// noteSignature records that t carries sig and seeds its memoized signature.
func (c *Cache) noteSignature(t *TypeMirror, sig string) {
	t.signature.set(sig)
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.mirrors[cacheKey{KindType, uint64(t.id)}]; !ok || cur != Mirror(t) {
		return
	}
	ids := c.bySig[sig]
	if ids == nil {
		ids = make(map[ReferenceTypeID]struct{})
		c.bySig[sig] = ids
	}
	ids[t.id] = struct{}{}
}

// evictSignature drops every type mirror known to carry sig and reports how
// many were removed. A later resolve of the same ID yields a fresh mirror.
func (c *Cache) evictSignature(sig string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.bySig[sig]
	delete(c.bySig, sig)
	for id := range ids {
		delete(c.mirrors, cacheKey{KindType, uint64(id)})
	}
	return len(ids)
}

// threads returns the cached thread mirrors.
func (c *Cache) threads() []*ThreadMirror {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*ThreadMirror
	for k, m := range c.mirrors {
		if k.kind == KindThread {
			out = append(out, m.(*ThreadMirror))
		}
	}
	return out
}

// Len returns the number of cached mirrors.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mirrors)
}
