package perfspan

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Kernel entry points. Tests replace these with a fake kernel.
var (
	perfEventOpen = unix.PerfEventOpen
	perfIoctl     = unix.IoctlSetInt
	perfID        = ioctlID
	readFD        = unix.Read
	closeFD       = unix.Close
)

func ioctlID(fd int) (uint64, error) {
	var id uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.PERF_EVENT_IOC_ID, uintptr(unsafe.Pointer(&id)))
	if errno != 0 {
		return 0, errno
	}
	return id, nil
}

// A counter is one open perf event. It owns fd until close.
type counter struct {
	fd    int
	event Event
	// id is assigned by the kernel at open time and identifies this counter
	// in a grouped read.
	id    uint64
	value uint64
}

// openCounter opens e as a member of the group led by leader, or as a new
// leader when leader is -1. grouped selects the GROUP|ID read format, which
// every member of a multi-event group needs.
func openCounter(e Event, index, leader int, grouped bool, opts Options) (*counter, error) {
	typ, config, name := Resolve(e)
	if !e.kind.valid() {
		return nil, &OpenError{Event: name, Index: index, Err: ErrUnknownKind}
	}

	attr := unix.PerfEventAttr{
		Type:   typ,
		Config: config,
		Bits:   unix.PerfBitDisabled,
	}
	attr.Size = uint32(unsafe.Sizeof(attr))
	if !opts.Kernel {
		attr.Bits |= unix.PerfBitExcludeKernel
	}
	if !opts.Hypervisor {
		attr.Bits |= unix.PerfBitExcludeHv
	}
	if opts.ExcludeUser {
		attr.Bits |= unix.PerfBitExcludeUser
	}
	if grouped {
		attr.Read_format = unix.PERF_FORMAT_GROUP | unix.PERF_FORMAT_ID
	}

	flags := 0
	if supportsCloexec() {
		flags |= unix.PERF_FLAG_FD_CLOEXEC
	}

	fd, err := perfEventOpen(&attr, 0, -1, leader, flags)
	if err != nil {
		return nil, &OpenError{Event: name, Index: index, Err: annotateOpenErr(err)}
	}
	id, err := perfID(fd)
	if err != nil {
		closeFD(fd)
		return nil, &OpenError{Event: name, Index: index, Err: fmt.Errorf("query id: %w", err)}
	}
	return &counter{fd: fd, event: e, id: id}, nil
}

// close releases the counter's fd. Only the first call reaches the kernel.
func (c *counter) close() error {
	if c.fd < 0 {
		return nil
	}
	err := closeFD(c.fd)
	c.fd = -1
	return err
}
