package modem

// byteRing is a fixed capacity FIFO holding bytes pulled from the modem but
// not yet handed to the reader. It is guarded by the owning socket's lock.
type byteRing struct {
	buf   []byte
	head  int
	count int
}

func newByteRing(capacity int) *byteRing {
	if capacity < 1 {
		capacity = 1
	}
	return &byteRing{buf: make([]byte, capacity)}
}

func (r *byteRing) Len() int  { return r.count }
func (r *byteRing) Cap() int  { return len(r.buf) }
func (r *byteRing) Free() int { return len(r.buf) - r.count }

func (r *byteRing) Reset() {
	r.head, r.count = 0, 0
}

// Write stores as much of data as fits and returns how much that was.
func (r *byteRing) Write(data []byte) int {
	n := min(len(data), r.Free())
	tail := (r.head + r.count) % len(r.buf)
	for i := 0; i < n; i++ {
		r.buf[tail] = data[i]
		tail = (tail + 1) % len(r.buf)
	}
	r.count += n
	return n
}

func (r *byteRing) Read(dst []byte) int {
	n := min(len(dst), r.count)
	for i := 0; i < n; i++ {
		dst[i] = r.buf[r.head]
		r.head = (r.head + 1) % len(r.buf)
	}
	r.count -= n
	return n
}
