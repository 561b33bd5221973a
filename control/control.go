// Package control implements the control core side of the worker protocol.
// It lays out main memory, starts the workers and feeds them command
// batches.
package control

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/clktmr/tileraster/dma"
	"github.com/clktmr/tileraster/mainmem"
	"github.com/clktmr/tileraster/pixel"
	"github.com/clktmr/tileraster/protocol"
	"github.com/clktmr/tileraster/tile"
	"github.com/clktmr/tileraster/worker"
)

var (
	ErrClosed      = errors.New("control: closed")
	ErrWorkerDied  = errors.New("control: worker died")
	ErrBatchTooBig = errors.New("control: batch exceeds slot")
)

type Config struct {
	Workers       int // default 1
	Slots         int // batch slots per worker, default 4
	VertexBuffers int // default 2
	MemorySize    int // default 16 MiB

	Worker worker.Config
	// Trace, if set, is called for every transfer a worker issues.
	Trace func(worker int, t dma.Transfer)
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Slots <= 0 {
		c.Slots = 4
	}
	if c.VertexBuffers <= 0 {
		c.VertexBuffers = 2
	}
	if c.MemorySize <= 0 {
		c.MemorySize = 16 << 20
	}
}

// Host owns main memory and the mailboxes of all workers.  It isn't safe for
// concurrent use.
type Host struct {
	mem     *mainmem.Memory
	info    protocol.InitInfo
	workers []*worker.Context
	in      []chan uint32
	out     []chan uint32

	died chan struct{}
	wg   sync.WaitGroup

	errMtx sync.Mutex
	errs   []error

	next   int
	closed bool
}

// New lays out main memory and starts the workers.
func New(cfg Config) (*Host, error) {
	cfg.setDefaults()
	n := cfg.Workers
	mem := mainmem.New(cfg.MemorySize)
	h := &Host{
		mem:  mem,
		died: make(chan struct{}),
	}

	var err error
	alloc := func(size int) mainmem.Addr {
		if err != nil {
			return 0
		}
		var a mainmem.Addr
		a, err = mem.Alloc(size, mainmem.QwordSize)
		return a
	}
	h.info = protocol.InitInfo{
		NumWorkers:       uint32(n),
		BatchBase:        alloc(cfg.Slots * protocol.MaxBatchSize),
		SlotStride:       protocol.MaxBatchSize,
		NumSlots:         uint32(cfg.Slots),
		BufferStatusBase: alloc(n * cfg.Slots * protocol.StatusSize),
		VbufStatusBase:   alloc(n * cfg.VertexBuffers * protocol.StatusSize),
		NumVbufSlots:     uint32(cfg.VertexBuffers),
		FenceBase:        alloc(n * protocol.StatusSize),
	}
	if err != nil {
		return nil, fmt.Errorf("control: laying out memory: %w", err)
	}
	for w := range n {
		for s := range cfg.Slots {
			mem.Store32(h.statusAddr(w, s), protocol.BufferFree)
		}
		for s := range cfg.VertexBuffers {
			mem.Store32(protocol.BufferStatusAddr(h.info.VbufStatusBase, w, cfg.VertexBuffers, s), protocol.BufferFree)
		}
	}

	for w := range n {
		info := h.info
		info.WorkerID = uint32(w)
		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, &info)
		addr, err := mem.Alloc(protocol.InitInfoSize, mainmem.QwordSize)
		if err != nil {
			h.Close()
			return nil, err
		}
		mem.WriteAt(buf.Bytes(), int64(addr))

		in := make(chan uint32, cfg.Slots+2)
		out := make(chan uint32, 1)
		wcfg := cfg.Worker
		if cfg.Trace != nil {
			wcfg.Trace = func(t dma.Transfer) { cfg.Trace(w, t) }
		}
		ctx, err := worker.New(mem, addr, worker.Mailbox{In: in, Out: out}, wcfg)
		if err != nil {
			h.Close()
			return nil, err
		}
		h.workers = append(h.workers, ctx)
		h.in = append(h.in, in)
		h.out = append(h.out, out)

		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := ctx.Run(); err != nil {
				h.fail(fmt.Errorf("worker %d: %w", ctx.ID, err))
			}
		}()
	}
	return h, nil
}

func (h *Host) fail(err error) {
	h.errMtx.Lock()
	defer h.errMtx.Unlock()
	if len(h.errs) == 0 {
		close(h.died)
	}
	h.errs = append(h.errs, err)
}

// Err returns the errors of all workers that died so far.
func (h *Host) Err() error {
	h.errMtx.Lock()
	defer h.errMtx.Unlock()
	return errors.Join(h.errs...)
}

func (h *Host) Memory() *mainmem.Memory     { return h.mem }
func (h *Host) Workers() []*worker.Context  { return h.workers }
func (h *Host) InitInfo() protocol.InitInfo { return h.info }

func (h *Host) statusAddr(w, slot int) mainmem.Addr {
	return protocol.BufferStatusAddr(h.info.BufferStatusBase, w, int(h.info.NumSlots), slot)
}

// NewFramebuffer allocates the surfaces of a framebuffer.  Use
// pixel.DepthNone for a framebuffer without depth.
func (h *Host) NewFramebuffer(cf pixel.Format, df pixel.DepthFormat, width, height int) (tile.Framebuffer, error) {
	fb := tile.NewFramebuffer(0, 0, cf, df, width, height)
	var err error
	if fb.ColorAddr, err = h.mem.Alloc(fb.SurfaceSize(tile.Color), 64); err != nil {
		return fb, err
	}
	if fb.HasDepth() {
		if fb.DepthAddr, err = h.mem.Alloc(fb.SurfaceSize(tile.Depth), 64); err != nil {
			return fb, err
		}
	}
	return fb, nil
}

// SetFramebuffer encodes the state command selecting fb.
func SetFramebuffer(e *protocol.Encoder, fb *tile.Framebuffer) {
	e.Encode(&protocol.StateFramebuffer{
		Op:          protocol.OpStateFramebuffer,
		ColorAddr:   fb.ColorAddr,
		DepthAddr:   fb.DepthAddr,
		ColorFormat: fb.ColorFormat,
		DepthFormat: fb.DepthFormat,
		Width:       uint32(fb.Width),
		Height:      uint32(fb.Height),
	})
}

// Image copies the color surface of fb into an image.  Call it after Finish.
func (h *Host) Image(fb *tile.Framebuffer) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, fb.Width, fb.Height))
	for ty := range fb.HeightTiles {
		for tx := range fb.WidthTiles {
			t := (*tile.Tile)(h.mem.Bytes(fb.TileAddr(tile.Color, tx, ty), tile.MaxBytes))
			for y := range tile.Size {
				for x := range tile.Size {
					px, py := tx*tile.Size+x, ty*tile.Size+y
					if px < fb.Width && py < fb.Height {
						img.SetNRGBA(px, py, pixel.RGBA(fb.ColorFormat, t.U32(x, y)))
					}
				}
			}
		}
	}
	return img
}

// wait polls until cond holds or a worker died.
func (h *Host) wait(cond func() bool) error {
	for !cond() {
		select {
		case <-h.died:
			return fmt.Errorf("%w: %w", ErrWorkerDied, h.Err())
		default:
		}
		runtime.Gosched()
	}
	return nil
}

func (h *Host) send(w int, msg protocol.Message) error {
	select {
	case h.in[w] <- uint32(msg):
		return nil
	case <-h.died:
		return fmt.Errorf("%w: %w", ErrWorkerDied, h.Err())
	}
}

// Submit broadcasts the batch in e to every worker.  It blocks until the
// next slot was released by all workers.
func (h *Host) Submit(e *protocol.Encoder) error {
	if h.closed {
		return ErrClosed
	}
	size := e.Len()
	if size == 0 {
		return nil
	}
	if size > protocol.MaxBatchSize {
		return fmt.Errorf("%w: %d bytes", ErrBatchTooBig, size)
	}

	slot := h.next
	h.next = (h.next + 1) % int(h.info.NumSlots)
	for w := range h.workers {
		err := h.wait(func() bool { return h.mem.Load32(h.statusAddr(w, slot)) == protocol.BufferFree })
		if err != nil {
			return err
		}
	}

	h.mem.WriteAt(e.Bytes(), int64(h.info.SlotAddr(slot)))
	for w := range h.workers {
		h.mem.Store32(h.statusAddr(w, slot), protocol.BufferUsed)
	}
	for w := range h.workers {
		if err := h.send(w, protocol.BatchMessage(slot, size)); err != nil {
			return err
		}
	}
	return nil
}

// Finish makes every worker write back its tiles and waits for all of them.
func (h *Host) Finish() error {
	if h.closed {
		return ErrClosed
	}
	for w := range h.workers {
		if err := h.send(w, protocol.DispatchMessage(protocol.OpFinish)); err != nil {
			return err
		}
	}
	for w := range h.workers {
		select {
		case word := <-h.out[w]:
			if word != protocol.Completion {
				return fmt.Errorf("control: worker %d posted %#x", w, word)
			}
		case <-h.died:
			return fmt.Errorf("%w: %w", ErrWorkerDied, h.Err())
		}
	}
	return nil
}

// Fence submits a fence and waits until every worker executed all commands
// submitted before it.
func (h *Host) Fence() error {
	for w := range h.workers {
		h.mem.Store32(protocol.FenceAddr(h.info.FenceBase, w), protocol.FenceEmitted)
	}
	var e protocol.Encoder
	e.Fence()
	if err := h.Submit(&e); err != nil {
		return err
	}
	for w := range h.workers {
		addr := protocol.FenceAddr(h.info.FenceBase, w)
		if err := h.wait(func() bool { return h.mem.Load32(addr) == protocol.FenceSignalled }); err != nil {
			return err
		}
		h.mem.Store32(addr, protocol.FenceIdle)
	}
	return nil
}

// VertexBufferFree reports whether every worker released vertex buffer
// slot.
func (h *Host) VertexBufferFree(slot int) bool {
	for w := range h.workers {
		addr := protocol.BufferStatusAddr(h.info.VbufStatusBase, w, int(h.info.NumVbufSlots), slot)
		if h.mem.Load32(addr) != protocol.BufferFree {
			return false
		}
	}
	return true
}

// UseVertexBuffer marks vertex buffer slot as used by all workers.  They
// free it again when executing a ReleaseVertexBuffer command.
func (h *Host) UseVertexBuffer(slot int) {
	for w := range h.workers {
		h.mem.Store32(protocol.BufferStatusAddr(h.info.VbufStatusBase, w, int(h.info.NumVbufSlots), slot), protocol.BufferUsed)
	}
}

// Close stops all workers and returns the errors of those that died.
func (h *Host) Close() error {
	if h.closed {
		return ErrClosed
	}
	h.closed = true
	for w := range h.in {
		select {
		case h.in[w] <- uint32(protocol.ExitMessage()):
		case <-h.died:
			close(h.in[w])
		}
	}
	h.wg.Wait()
	return h.Err()
}
