package cache

// lruList tracks access recency with a doubly-linked list over cache keys.
// Head is most recent, tail is the eviction candidate. Not safe for
// concurrent use; the manager serializes access under its lock.
type lruList struct {
	nodes map[string]*lruNode
	head  *lruNode
	tail  *lruNode
}

type lruNode struct {
	key  string
	prev *lruNode
	next *lruNode
}

func newLRUList() *lruList {
	return &lruList{nodes: make(map[string]*lruNode)}
}

// touch marks key as most recently used, inserting it if unknown.
func (l *lruList) touch(key string) {
	if n, ok := l.nodes[key]; ok {
		l.unlink(n)
		l.pushFront(n)
		return
	}
	n := &lruNode{key: key}
	l.nodes[key] = n
	l.pushFront(n)
}

// oldest returns the least recently used key, or "" when empty.
func (l *lruList) oldest() string {
	if l.tail == nil {
		return ""
	}
	return l.tail.key
}

// oldestExcept walks from the tail toward the head and returns the first key
// not equal to skip, so an in-progress write is never its own victim.
func (l *lruList) oldestExcept(skip string) string {
	for n := l.tail; n != nil; n = n.prev {
		if n.key != skip {
			return n.key
		}
	}
	return ""
}

// oldestWithPrefix returns the least recently used key under prefix,
// skipping skip, or "" when none qualifies.
func (l *lruList) oldestWithPrefix(prefix, skip string) string {
	for n := l.tail; n != nil; n = n.prev {
		if n.key != skip && keyPrefix(n.key) == prefix {
			return n.key
		}
	}
	return ""
}

// remove forgets key entirely.
func (l *lruList) remove(key string) {
	if n, ok := l.nodes[key]; ok {
		l.unlink(n)
		delete(l.nodes, key)
	}
}

func (l *lruList) len() int { return len(l.nodes) }

func (l *lruList) pushFront(n *lruNode) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
}

func (l *lruList) unlink(n *lruNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
}
