package tile

// Status is the state of a tile of a surface as seen by its owner.
type Status uint8

const (
	_ Status = iota
	// Clear means the tile is logically cleared, but the clear value wasn't
	// written anywhere yet.
	Clear
	// Defined means the contents in main memory are valid and the local
	// buffer doesn't hold the tile.
	Defined
	// Clean means main memory and the local buffer hold the same contents.
	Clean
	// Dirty means the local buffer was modified but not written back.
	Dirty
	// Getting means a transfer into the local buffer was issued but not
	// waited for.
	Getting
)

func (s Status) String() string {
	switch s {
	case Clear:
		return "CLEAR"
	case Defined:
		return "DEFINED"
	case Clean:
		return "CLEAN"
	case Dirty:
		return "DIRTY"
	case Getting:
		return "GETTING"
	}
	return "INVALID"
}

// StatusTable holds the status of every tile of the framebuffer, including
// tiles owned by other workers.
type StatusTable struct {
	w, h   int
	status []Status
}

// Reset resizes the table to w×h tiles and sets all of them to s.
func (t *StatusTable) Reset(w, h int, s Status) {
	t.w, t.h = w, h
	if cap(t.status) < w*h {
		t.status = make([]Status, w*h)
	}
	t.status = t.status[:w*h]
	t.Fill(s)
}

func (t *StatusTable) Fill(s Status) {
	for i := range t.status {
		t.status[i] = s
	}
}

func (t *StatusTable) Get(tx, ty int) Status    { return t.status[ty*t.w+tx] }
func (t *StatusTable) Set(tx, ty int, s Status) { t.status[ty*t.w+tx] = s }

func (t *StatusTable) Size() (w, h int) { return t.w, t.h }
