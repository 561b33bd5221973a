// Package worker implements the render loop of a worker: it receives
// command batches through its mailbox, renders the tiles it owns and
// writes them back to main memory.
package worker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/clktmr/tileraster/dma"
	"github.com/clktmr/tileraster/fetch"
	"github.com/clktmr/tileraster/mainmem"
	"github.com/clktmr/tileraster/pixel"
	"github.com/clktmr/tileraster/protocol"
	"github.com/clktmr/tileraster/raster"
	"github.com/clktmr/tileraster/shader"
	"github.com/clktmr/tileraster/texture"
	"github.com/clktmr/tileraster/tile"
)

// DMA tags not owned by one of the caches or the tile store.
const (
	TagBatch  dma.Tag = 1
	TagStatus dma.Tag = 5
)

var (
	ErrInitInfo = errors.New("worker: invalid init info")
	ErrMessage  = errors.New("unknown mailbox message")
)

// ProtocolError reports a batch or message the worker can't process.  The
// worker stops after returning one.
type ProtocolError struct {
	Op     protocol.Opcode
	Offset int // of the record in its batch
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("worker: protocol error in %v at %d: %v", e.Op, e.Offset, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Mailbox connects a worker to its producer.
type Mailbox struct {
	In  <-chan uint32
	Out chan<- uint32
}

type Config struct {
	// CodeBufferLimit bounds the buffers holding installed code.  Zero
	// means unbounded.
	CodeBufferLimit int
	// Trace observes every DMA transfer of the worker.
	Trace func(dma.Transfer)
}

type Stats struct {
	Batches  int
	Commands int
	Renders  int
	Frames   int
	Fences   int
}

// Context is the complete state of a worker.
type Context struct {
	ID, NumWorkers int

	info    protocol.InitInfo
	mailbox Mailbox
	log     *slog.Logger

	dma      *dma.Engine
	store    *tile.Store
	fetch    *fetch.Cache
	textures *texture.Textures
	raster   *raster.Rasterizer

	opsCode   *shader.CodeBuffer
	fetchCode *shader.CodeBuffer
	ops       shader.Ops
	attrFetch shader.AttributeFetch
	vprog     shader.VertexProgram

	layout   protocol.StateVertexLayout
	arrays   [shader.MaxAttribs]protocol.VertexArray
	viewport protocol.StateViewport
	uniforms protocol.StateUniforms

	batch    []byte
	status   [protocol.StatusSize]byte
	vertices []raster.Vertex

	stats Stats
}

// New reads the worker's configuration from the InitInfo block at
// initAddr.
func New(mem *mainmem.Memory, initAddr mainmem.Addr, mb Mailbox, cfg Config) (*Context, error) {
	var opts []dma.Option
	if cfg.Trace != nil {
		opts = append(opts, dma.WithTrace(cfg.Trace))
	}
	e := dma.New(mem, opts...)

	var raw [protocol.InitInfoSize]byte
	e.GetSync(raw[:], initAddr, TagBatch)
	var info protocol.InitInfo
	if err := binary.Read(bytes.NewReader(raw[:]), binary.LittleEndian, &info); err != nil {
		return nil, err
	}
	if info.NumWorkers == 0 || info.WorkerID >= info.NumWorkers || info.NumSlots == 0 || info.SlotStride < protocol.MaxBatchSize {
		return nil, fmt.Errorf("%w: %+v", ErrInitInfo, info)
	}

	c := &Context{
		ID:         int(info.WorkerID),
		NumWorkers: int(info.NumWorkers),
		info:       info,
		mailbox:    mb,
		log:        Logger().With("worker", info.WorkerID),
		dma:        e,
		store:      tile.NewStore(e, int(info.WorkerID), int(info.NumWorkers)),
		fetch:      fetch.New(e),
		textures:   texture.NewTextures(texture.NewCache(e)),
		opsCode:    shader.NewCodeBuffer(cfg.CodeBufferLimit),
		fetchCode:  shader.NewCodeBuffer(cfg.CodeBufferLimit),
		ops:        shader.NativeOps,
		vprog:      shader.Identity,
		batch:      make([]byte, protocol.MaxBatchSize),
	}
	c.attrFetch = c.layoutFetch()
	c.raster = raster.New(c.store)
	c.raster.Ops = &c.ops
	c.raster.Context.Textures = c.textures
	c.layout.NumAttribs = uint32(c.raster.NumAttribs)
	return c, nil
}

// Run starts a worker and processes its mailbox until it receives an exit
// message or fails.
func Run(mem *mainmem.Memory, initAddr mainmem.Addr, mb Mailbox, cfg Config) error {
	c, err := New(mem, initAddr, mb, cfg)
	if err != nil {
		return err
	}
	return c.Run()
}

// layoutFetch reads vertex arrays in the formats of the current vertex
// layout.
func (c *Context) layoutFetch() shader.AttributeFetch {
	return (*shader.FetchFormats)(&c.layout.Formats)
}

func (c *Context) Stats() Stats                   { return c.stats }
func (c *Context) Store() *tile.Store             { return c.store }
func (c *Context) DMA() *dma.Engine               { return c.dma }
func (c *Context) Rasterizer() *raster.Rasterizer { return c.raster }

// Run processes mailbox messages until an exit message arrives or the
// mailbox is closed.
func (c *Context) Run() error {
	for w := range c.mailbox.In {
		msg := protocol.Message(w)
		switch msg.Class() {
		case protocol.MsgExit:
			c.log.Debug("exit")
			return nil
		case protocol.MsgBatch:
			if err := c.ProcessBatch(msg.Slot(), msg.Size()); err != nil {
				return err
			}
		case protocol.MsgDispatch:
			if err := c.dispatch(msg.Opcode()); err != nil {
				return err
			}
		default:
			return &ProtocolError{Err: fmt.Errorf("%w %v", ErrMessage, msg)}
		}
	}
	return nil
}

// ProcessBatch fetches the batch in slot and executes its commands.  The
// slot is released before the first command runs.  size is rounded up to
// the record alignment.
func (c *Context) ProcessBatch(slot, size int) error {
	if slot >= int(c.info.NumSlots) || size <= 0 || size > protocol.MaxBatchSize {
		return &ProtocolError{Err: fmt.Errorf("%w: batch slot %d size %d", protocol.ErrRecordSize, slot, size)}
	}
	size = mainmem.RoundUp(size, protocol.RecordAlign)
	c.stats.Batches++
	batch := c.batch[:size]
	c.dma.GetSync(batch, c.info.SlotAddr(slot), TagBatch)
	c.writeStatus(protocol.BufferStatusAddr(c.info.BufferStatusBase, c.ID, int(c.info.NumSlots), slot), protocol.BufferFree)
	c.log.Debug("batch", "slot", slot, "size", size)

	d := protocol.NewDecoder(batch)
	for d.More() {
		off := d.Offset()
		op, rec, err := d.Next()
		if err == nil {
			err = c.execute(op, rec)
		}
		if err != nil {
			var perr *ProtocolError
			if errors.As(err, &perr) {
				return perr
			}
			return &ProtocolError{Op: op, Offset: off, Err: err}
		}
		c.stats.Commands++
	}
	return nil
}

// writeStatus stores v as the first word of the status block at addr and
// waits until it reached main memory.
func (c *Context) writeStatus(addr mainmem.Addr, v uint32) {
	clear(c.status[:])
	binary.LittleEndian.PutUint32(c.status[:], v)
	c.dma.PutSync(c.status[:], addr, TagStatus)
}

// dispatch executes a command sent directly through the mailbox.
func (c *Context) dispatch(op protocol.Opcode) error {
	if op != protocol.OpFinish {
		return &ProtocolError{Op: op, Err: fmt.Errorf("%w: %v can't be dispatched", ErrMessage, op)}
	}
	c.finish()
	return nil
}

// finish materializes all pending clears, waits for every transfer and
// reports completion to the producer.
func (c *Context) finish() {
	c.store.Flush()
	c.dma.WaitOnMaskAll(dma.AllTags)
	c.stats.Frames++
	c.log.Debug("finish", "frame", c.stats.Frames, "stats", c.store.Stats())
	c.mailbox.Out <- protocol.Completion
}

func constantColors(vals []float32) []pixel.Color {
	cs := make([]pixel.Color, len(vals))
	for i, v := range vals {
		cs[i] = pixel.Color{v, v, v, v}
	}
	return cs
}
