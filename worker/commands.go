package worker

import (
	"errors"
	"fmt"

	"github.com/clktmr/tileraster/protocol"
	"github.com/clktmr/tileraster/shader"
	"github.com/clktmr/tileraster/texture"
	"github.com/clktmr/tileraster/tile"
)

var ErrInvalidState = errors.New("invalid state")

func decode[T any](rec []byte) (*T, error) {
	v := new(T)
	return v, protocol.Decode(rec, v)
}

// execute runs a single record of a batch.
func (c *Context) execute(op protocol.Opcode, rec []byte) error {
	switch op {
	case protocol.OpClear:
		cmd, err := decode[protocol.Clear](rec)
		if err != nil {
			return err
		}
		if cmd.Surface > uint32(tile.Depth) {
			return fmt.Errorf("%w: surface %d", ErrInvalidState, cmd.Surface)
		}
		c.store.Clear(cmd.Target(), cmd.Value)

	case protocol.OpRender:
		c.stats.Renders++
		return c.render(rec)

	case protocol.OpFinish:
		c.finish()

	case protocol.OpFence:
		c.stats.Fences++
		c.writeStatus(protocol.FenceAddr(c.info.FenceBase, c.ID), protocol.FenceSignalled)
		c.log.Debug("fence")

	case protocol.OpStateFramebuffer:
		return c.setFramebuffer(rec)

	case protocol.OpStateFragmentOps:
		cmd, err := decode[protocol.StateFragmentOps](rec)
		if err != nil {
			return err
		}
		code := protocol.Payload(rec, protocol.FragmentOpsHeaderSize)[:cmd.Total-uint32(protocol.FragmentOpsHeaderSize)]
		c.ops, err = shader.Install(c.opsCode, code, cmd.Front, cmd.Back)
		if err != nil {
			c.log.Warn("fragment ops fall back to native", "err", err)
		}

	case protocol.OpStateFragmentProgram:
		cmd, err := decode[protocol.StateFragmentProgram](rec)
		if err != nil {
			return err
		}
		p, ok := shader.LookupProgram(cmd.ID)
		if !ok {
			c.log.Warn("unknown fragment program", "id", cmd.ID)
			p = shader.PassThrough
		}
		c.raster.Context.Program = p

	case protocol.OpStateConstants:
		c.raster.Context.Constants = constantColors(protocol.Constants(rec))

	case protocol.OpStateRasterizer:
		cmd, err := decode[protocol.StateRasterizer](rec)
		if err != nil {
			return err
		}
		c.raster.State = cmd.State

	case protocol.OpStateSampler:
		cmd, err := decode[protocol.StateSampler](rec)
		if err != nil {
			return err
		}
		if cmd.Unit >= texture.MaxUnits {
			return fmt.Errorf("%w: texture unit %d", ErrInvalidState, cmd.Unit)
		}
		c.textures.SetSampler(int(cmd.Unit), cmd.Sampler)

	case protocol.OpStateTexture:
		return c.setTexture(rec)

	case protocol.OpStateVertexLayout:
		cmd, err := decode[protocol.StateVertexLayout](rec)
		if err != nil {
			return err
		}
		if cmd.NumAttribs == 0 || cmd.NumAttribs > shader.MaxAttribs {
			return fmt.Errorf("%w: %d attributes", ErrInvalidState, cmd.NumAttribs)
		}
		p, ok := shader.LookupVertexProgram(cmd.Program)
		if !ok {
			return fmt.Errorf("%w: vertex program %d", ErrInvalidState, cmd.Program)
		}
		c.layout = *cmd
		c.vprog = p
		c.raster.NumAttribs = int(cmd.NumAttribs)

	case protocol.OpStateViewport:
		cmd, err := decode[protocol.StateViewport](rec)
		if err != nil {
			return err
		}
		c.viewport = *cmd

	case protocol.OpStateUniforms:
		cmd, err := decode[protocol.StateUniforms](rec)
		if err != nil {
			return err
		}
		if cmd.Size > maxUniformBytes {
			return fmt.Errorf("%w: %d bytes of uniforms", ErrInvalidState, cmd.Size)
		}
		c.uniforms = *cmd

	case protocol.OpStateVertexArrayInfo:
		cmd, err := decode[protocol.StateVertexArrayInfo](rec)
		if err != nil {
			return err
		}
		c.arrays = cmd.Arrays

	case protocol.OpStateAttributeFetchCode:
		cmd, err := decode[protocol.StateAttributeFetchCode](rec)
		if err != nil {
			return err
		}
		code := protocol.Payload(rec, protocol.FetchCodeHeaderSize)[:cmd.Total-uint32(protocol.FetchCodeHeaderSize)]
		c.attrFetch, err = shader.InstallFetch(c.fetchCode, code)
		if err != nil {
			c.attrFetch = c.layoutFetch()
			c.log.Warn("attribute fetch falls back to vertex layout", "err", err)
		}

	case protocol.OpReleaseVertexBuffer:
		cmd, err := decode[protocol.ReleaseVertexBuffer](rec)
		if err != nil {
			return err
		}
		if cmd.Slot >= c.info.NumVbufSlots {
			return fmt.Errorf("%w: vertex buffer slot %d", ErrInvalidState, cmd.Slot)
		}
		addr := protocol.BufferStatusAddr(c.info.VbufStatusBase, c.ID, int(c.info.NumVbufSlots), int(cmd.Slot))
		c.writeStatus(addr, protocol.BufferFree)

	case protocol.OpFlushBufferRange:
		cmd, err := decode[protocol.FlushBufferRange](rec)
		if err != nil {
			return err
		}
		c.fetch.MarkDirty(cmd.Base, int(cmd.Size))

	case protocol.OpStateDepthStencil:
		cmd, err := decode[protocol.StateDepthStencil](rec)
		if err != nil {
			return err
		}
		c.raster.Context.DepthStencil = cmd.DepthStencil

	case protocol.OpStateBlend:
		cmd, err := decode[protocol.StateBlend](rec)
		if err != nil {
			return err
		}
		c.raster.Context.Blend = cmd.Blend

	default:
		return protocol.ErrUnknownOpcode
	}
	return nil
}

func (c *Context) setFramebuffer(rec []byte) error {
	cmd, err := decode[protocol.StateFramebuffer](rec)
	if err != nil {
		return err
	}
	if !cmd.ColorFormat.Valid() || !cmd.DepthFormat.Valid() || cmd.Width == 0 || cmd.Height == 0 || cmd.Width > 1<<13 || cmd.Height > 1<<13 {
		return fmt.Errorf("%w: framebuffer %+v", ErrInvalidState, cmd)
	}
	fb := tile.NewFramebuffer(cmd.ColorAddr, cmd.DepthAddr, cmd.ColorFormat, cmd.DepthFormat, int(cmd.Width), int(cmd.Height))
	c.store.SetFramebuffer(fb)
	c.viewport = protocol.StateViewport{
		Width:  float32(cmd.Width),
		Height: float32(cmd.Height),
		Far:    1,
	}
	return nil
}

func (c *Context) setTexture(rec []byte) error {
	cmd, err := decode[protocol.StateTexture](rec)
	if err != nil {
		return err
	}
	if cmd.Unit >= texture.MaxUnits || cmd.NumLevels > texture.MaxLevels || !cmd.Format.Valid() && cmd.NumLevels > 0 {
		return fmt.Errorf("%w: texture unit %d with %d levels", ErrInvalidState, cmd.Unit, cmd.NumLevels)
	}
	levels := make([]texture.Level, cmd.NumLevels)
	for i := range levels {
		l := &cmd.Levels[i]
		if l.Width == 0 || l.Height == 0 {
			return fmt.Errorf("%w: texture level %d is empty", ErrInvalidState, i)
		}
		levels[i] = texture.NewLevel(l.Addr, int(l.Width), int(l.Height), int(l.Depth))
	}
	c.textures.SetTexture(int(cmd.Unit), cmd.Format, levels)
	return nil
}
