package alloc

import "unsafe"

// listNode is an intrusive doubly-linked list node overlaid directly on raw
// memory. Both regions thread their free structures through the very bytes
// they manage: a BuddyRegion's per-order free-list sentinels live in its
// metadata prefix, a FreelistRegion's sentinel is one of its own slots
// (the first one at construction), and every other list entry is a free block or slot writing its
// own link pair into its own first bytes. This is not a pointer-graph leak
// into the type system; it is a deliberate overlay, so every function here
// operates on a raw address, not a Go-managed value.
type listNode struct {
	next unsafe.Pointer
	prev unsafe.Pointer
}

func nodeAt(p unsafe.Pointer) *listNode {
	return (*listNode)(p)
}

// listInit turns the node at head's own address into a self-referential,
// empty ring.
func listInit(head *listNode) {
	self := unsafe.Pointer(head)
	head.next = self
	head.prev = self
}

// listIsEmpty reports whether head has no other nodes attached to its ring.
func listIsEmpty(head *listNode) bool {
	return head.next == unsafe.Pointer(head)
}

// listPushFront links the node at addr into head's ring immediately after
// head.
func listPushFront(head *listNode, addr unsafe.Pointer) {
	n := nodeAt(addr)
	n.prev = unsafe.Pointer(head)
	n.next = head.next
	nodeAt(head.next).prev = addr
	head.next = addr
}

// listPopFront unlinks and returns the address of the node immediately
// after head. If head's ring is empty, this unlinks (as a no-op) and
// returns head's own address; callers check listIsEmpty first (see
// FreelistRegion, which hands out an empty ring's sentinel directly).
func listPopFront(head *listNode) unsafe.Pointer {
	addr := head.next
	n := nodeAt(addr)
	head.next = n.next
	nodeAt(n.next).prev = unsafe.Pointer(head)
	return addr
}

// listRemove unlinks the node at addr from whatever ring it currently sits
// on, without needing to know which ring that is.
func listRemove(addr unsafe.Pointer) {
	n := nodeAt(addr)
	nodeAt(n.prev).next = n.next
	nodeAt(n.next).prev = n.prev
}
