package alloc

// block is one contiguous free extent inside an arena slab. Blocks of
// the same size hang off their size class in FIFO order.
type block struct {
	off  uint64
	size uint64

	next, prev *block
	class      *sizeClass
}

// sizeClass is the FIFO list of free blocks sharing one exact size.
type sizeClass struct {
	size  uint64
	head  *block
	tail  *block
	count int
}

func (c *sizeClass) enqueue(b *block) {
	b.class = c
	if c.head == nil {
		c.head = b
		c.tail = b
	} else {
		c.tail.next = b
		b.prev = c.tail
		c.tail = b
	}
	c.count++
}

func (c *sizeClass) remove(b *block) {
	if b.prev != nil {
		b.prev.next = b.next
	} else {
		c.head = b.next
	}
	if b.next != nil {
		b.next.prev = b.prev
	} else {
		c.tail = b.prev
	}
	b.next = nil
	b.prev = nil
	b.class = nil
	c.count--
}

func (c *sizeClass) empty() bool { return c.head == nil }

type color uint8

const (
	red color = iota
	black
)

type treeNode struct {
	key    uint64
	class  *sizeClass
	color  color
	left   *treeNode
	right  *treeNode
	parent *treeNode
}

// freeIndex is a red-black tree of size classes keyed by exact block
// size. Best-fit allocation walks to the smallest class that still
// fits (Ceiling); free reinserts blocks after coalescing.
type freeIndex struct {
	root *treeNode
	nil  *treeNode
	size int
}

func newFreeIndex() *freeIndex {
	nilNode := &treeNode{color: black}
	return &freeIndex{root: nilNode, nil: nilNode}
}

func (t *freeIndex) Size() int { return t.size }

// Find returns the class with exactly the given size, or nil.
func (t *freeIndex) Find(size uint64) *sizeClass {
	n := t.root
	for n != t.nil {
		switch {
		case size < n.key:
			n = n.left
		case size > n.key:
			n = n.right
		default:
			return n.class
		}
	}
	return nil
}

// Ceiling returns the smallest class whose size is >= size, or nil.
// This is the best-fit query.
func (t *freeIndex) Ceiling(size uint64) *sizeClass {
	best := t.nil
	n := t.root
	for n != t.nil {
		if n.key >= size {
			best = n
			n = n.left
		} else {
			n = n.right
		}
	}
	if best == t.nil {
		return nil
	}
	return best.class
}

// Max returns the largest class, or nil when the index is empty.
func (t *freeIndex) Max() *sizeClass {
	n := t.maxNode(t.root)
	if n == t.nil {
		return nil
	}
	return n.class
}

// GetOrCreate returns the class for size, inserting an empty one if absent.
func (t *freeIndex) GetOrCreate(size uint64) *sizeClass {
	y := t.nil
	x := t.root
	for x != t.nil {
		y = x
		if size < x.key {
			x = x.left
		} else if size > x.key {
			x = x.right
		} else {
			return x.class
		}
	}
	c := &sizeClass{size: size}
	z := &treeNode{key: size, class: c, color: red, left: t.nil, right: t.nil, parent: y}
	if y == t.nil {
		t.root = z
	} else if z.key < y.key {
		y.left = z
	} else {
		y.right = z
	}
	t.insertFixup(z)
	t.size++
	return c
}

// Delete removes the class with the given size.
func (t *freeIndex) Delete(size uint64) bool {
	z := t.searchNode(size)
	if z == t.nil {
		return false
	}
	t.deleteNode(z)
	t.size--
	return true
}

// ForEach visits classes in ascending size order until fn returns false.
func (t *freeIndex) ForEach(fn func(*sizeClass) bool) {
	for n := t.minNode(t.root); n != t.nil; n = t.next(n) {
		if !fn(n.class) {
			return
		}
	}
}

// ---- internals ----

func (t *freeIndex) searchNode(size uint64) *treeNode {
	n := t.root
	for n != t.nil {
		switch {
		case size < n.key:
			n = n.left
		case size > n.key:
			n = n.right
		default:
			return n
		}
	}
	return t.nil
}

func (t *freeIndex) minNode(n *treeNode) *treeNode {
	for n != t.nil && n.left != t.nil {
		n = n.left
	}
	return n
}

func (t *freeIndex) maxNode(n *treeNode) *treeNode {
	for n != t.nil && n.right != t.nil {
		n = n.right
	}
	return n
}

func (t *freeIndex) next(n *treeNode) *treeNode {
	if n.right != t.nil {
		return t.minNode(n.right)
	}
	p := n.parent
	for p != t.nil && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

func (t *freeIndex) rotateLeft(x *treeNode) {
	y := x.right
	x.right = y.left
	if y.left != t.nil {
		y.left.parent = x
	}
	y.parent = x.parent
	if x.parent == t.nil {
		t.root = y
	} else if x == x.parent.left {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *freeIndex) rotateRight(x *treeNode) {
	y := x.left
	x.left = y.right
	if y.right != t.nil {
		y.right.parent = x
	}
	y.parent = x.parent
	if x.parent == t.nil {
		t.root = y
	} else if x == x.parent.right {
		x.parent.right = y
	} else {
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

func (t *freeIndex) insertFixup(z *treeNode) {
	for z.parent.color == red {
		if z.parent == z.parent.parent.left {
			y := z.parent.parent.right
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.right {
					z = z.parent
					t.rotateLeft(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.rotateRight(z.parent.parent)
			}
		} else {
			y := z.parent.parent.left
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.left {
					z = z.parent
					t.rotateRight(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.rotateLeft(z.parent.parent)
			}
		}
	}
	t.root.color = black
}

func (t *freeIndex) transplant(u, v *treeNode) {
	if u.parent == t.nil {
		t.root = v
	} else if u == u.parent.left {
		u.parent.left = v
	} else {
		u.parent.right = v
	}
	v.parent = u.parent
}

func (t *freeIndex) deleteNode(z *treeNode) {
	y := z
	yColor := y.color
	var x *treeNode
	switch {
	case z.left == t.nil:
		x = z.right
		t.transplant(z, z.right)
	case z.right == t.nil:
		x = z.left
		t.transplant(z, z.left)
	default:
		y = t.minNode(z.right)
		yColor = y.color
		x = y.right
		if y.parent == z {
			x.parent = y
		} else {
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}
	if yColor == black {
		t.deleteFixup(x)
	}
}

func (t *freeIndex) deleteFixup(x *treeNode) {
	for x != t.root && x.color == black {
		if x == x.parent.left {
			w := x.parent.right
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.rotateLeft(x.parent)
				w = x.parent.right
			}
			if w.left.color == black && w.right.color == black {
				w.color = red
				x = x.parent
			} else {
				if w.right.color == black {
					w.left.color = black
					w.color = red
					t.rotateRight(w)
					w = x.parent.right
				}
				w.color = x.parent.color
				x.parent.color = black
				w.right.color = black
				t.rotateLeft(x.parent)
				x = t.root
			}
		} else {
			w := x.parent.left
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.rotateRight(x.parent)
				w = x.parent.left
			}
			if w.right.color == black && w.left.color == black {
				w.color = red
				x = x.parent
			} else {
				if w.left.color == black {
					w.right.color = black
					w.color = red
					t.rotateLeft(w)
					w = x.parent.left
				}
				w.color = x.parent.color
				x.parent.color = black
				w.left.color = black
				t.rotateRight(x.parent)
				x = t.root
			}
		}
	}
	x.color = black
}
