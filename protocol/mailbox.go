package protocol

import (
	"fmt"

	"github.com/clktmr/tileraster/mainmem"
)

// Class is the kind of a mailbox message.
type Class uint8

const (
	MsgExit Class = iota + 1
	MsgBatch
	MsgDispatch
)

func (c Class) String() string {
	switch c {
	case MsgExit:
		return "exit"
	case MsgBatch:
		return "batch"
	case MsgDispatch:
		return "dispatch"
	}
	return fmt.Sprintf("Class(%d)", uint8(c))
}

// Message is a mailbox word.  The low byte holds the class.  Batch messages
// carry the slot in bits 8-15 and the batch size in bits 16-31, dispatch
// messages a payload free opcode in bits 8-31.
type Message uint32

func ExitMessage() Message { return Message(MsgExit) }

func BatchMessage(slot, size int) Message {
	return Message(MsgBatch) | Message(slot&0xff)<<8 | Message(size&0xffff)<<16
}

func DispatchMessage(op Opcode) Message {
	return Message(MsgDispatch) | Message(op&0xffffff)<<8
}

func (m Message) Class() Class   { return Class(m) }
func (m Message) Slot() int      { return int(m >> 8 & 0xff) }
func (m Message) Size() int      { return int(m >> 16) }
func (m Message) Opcode() Opcode { return Opcode(m >> 8) }

func (m Message) String() string {
	switch m.Class() {
	case MsgBatch:
		return fmt.Sprintf("batch slot %d size %d", m.Slot(), m.Size())
	case MsgDispatch:
		return fmt.Sprintf("dispatch %v", m.Opcode())
	}
	return m.Class().String()
}

// Completion is the word a worker posts when it finished a frame.
const Completion = uint32(OpFinish)

// Values of the first word of a status block.
const (
	BufferFree = 10
	BufferUsed = 20

	FenceIdle      = 0
	FenceEmitted   = 1
	FenceSignalled = 2
)

// StatusSize is the size of a status block.
const StatusSize = mainmem.QwordSize

// BufferStatusAddr returns the status block through which worker releases
// batch slot.
func BufferStatusAddr(base mainmem.Addr, worker, numSlots, slot int) mainmem.Addr {
	return base + mainmem.Addr((worker*numSlots+slot)*StatusSize)
}

// FenceAddr returns the fence status block of worker.
func FenceAddr(base mainmem.Addr, worker int) mainmem.Addr {
	return base + mainmem.Addr(worker*StatusSize)
}

// InitInfo is the configuration a worker reads at startup.
type InitInfo struct {
	WorkerID, NumWorkers uint32
	// Batch slot i starts at BatchBase + i*SlotStride.
	BatchBase  mainmem.Addr
	SlotStride uint32
	NumSlots   uint32

	BufferStatusBase mainmem.Addr
	VbufStatusBase   mainmem.Addr
	NumVbufSlots     uint32
	FenceBase        mainmem.Addr
}

// InitInfoSize is the transfer size of InitInfo.
const InitInfoSize = 48

// SlotAddr returns the address of batch slot i.
func (ii *InitInfo) SlotAddr(i int) mainmem.Addr {
	return ii.BatchBase + mainmem.Addr(uint32(i)*ii.SlotStride)
}
