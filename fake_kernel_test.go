package perfspan

import (
	"encoding/binary"
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

type fakeOpen struct {
	attr    unix.PerfEventAttr
	groupFD int
	flags   int
	fd      int
}

type fakeIoctl struct {
	fd  int
	req uint
	arg int
}

// fakeKernel stands in for perf_event_open and friends. Counter fds start at
// 100 and ids at 1000 so they are easy to tell apart.
type fakeKernel struct {
	opens  []fakeOpen
	ioctls []fakeIoctl
	closes map[int]int
	ids    map[int]uint64

	// failOpenAt makes the n-th open (0 based) fail with openErr.
	failOpenAt int
	openErr    error
	// failID makes the id query of every fd fail.
	failID bool
	// failIoctl makes every ioctl with this request fail.
	failIoctl uint

	// values holds the count per kernel id.
	values map[uint64]uint64
	// readOrder is the order of ids in a grouped read. Defaults to the
	// reverse of open order.
	readOrder []uint64
	// readErr fails every read; readLimit truncates reads to that many
	// bytes when non-negative.
	readErr   error
	readLimit int
	reads     int
}

func installFakeKernel(t *testing.T) *fakeKernel {
	k := &fakeKernel{
		closes:     make(map[int]int),
		ids:        make(map[int]uint64),
		values:     make(map[uint64]uint64),
		failOpenAt: -1,
		readLimit:  -1,
	}
	oldOpen, oldIoctl, oldID, oldRead, oldClose := perfEventOpen, perfIoctl, perfID, readFD, closeFD
	perfEventOpen = k.open
	perfIoctl = k.ioctl
	perfID = k.id
	readFD = k.read
	closeFD = k.close
	t.Cleanup(func() {
		perfEventOpen, perfIoctl, perfID, readFD, closeFD = oldOpen, oldIoctl, oldID, oldRead, oldClose
	})
	return k
}

func (k *fakeKernel) open(attr *unix.PerfEventAttr, pid, cpu, groupFD, flags int) (int, error) {
	if len(k.opens) == k.failOpenAt {
		return -1, k.openErr
	}
	fd := 100 + len(k.opens)
	k.opens = append(k.opens, fakeOpen{attr: *attr, groupFD: groupFD, flags: flags, fd: fd})
	k.ids[fd] = uint64(1000 + len(k.opens) - 1)
	return fd, nil
}

func (k *fakeKernel) ioctl(fd int, req uint, arg int) error {
	k.ioctls = append(k.ioctls, fakeIoctl{fd, req, arg})
	if k.failIoctl != 0 && req == k.failIoctl {
		return unix.EINVAL
	}
	return nil
}

func (k *fakeKernel) id(fd int) (uint64, error) {
	if k.failID {
		return 0, unix.ENOTTY
	}
	id, ok := k.ids[fd]
	if !ok {
		return 0, unix.EBADF
	}
	return id, nil
}

func (k *fakeKernel) read(fd int, p []byte) (int, error) {
	k.reads++
	if k.readErr != nil {
		return -1, k.readErr
	}
	var data []byte
	if len(k.opens) == 1 {
		data = binary.NativeEndian.AppendUint64(nil, k.values[k.ids[fd]])
	} else {
		order := k.readOrder
		if order == nil {
			for i := len(k.opens) - 1; i >= 0; i-- {
				order = append(order, k.ids[k.opens[i].fd])
			}
		}
		data = binary.NativeEndian.AppendUint64(nil, uint64(len(order)))
		for _, id := range order {
			data = binary.NativeEndian.AppendUint64(data, k.values[id])
			data = binary.NativeEndian.AppendUint64(data, id)
		}
	}
	if k.readLimit >= 0 && len(data) > k.readLimit {
		data = data[:k.readLimit]
	}
	if len(data) > len(p) {
		return -1, errors.New("fake read: buffer too small")
	}
	return copy(p, data), nil
}

func (k *fakeKernel) close(fd int) error {
	k.closes[fd]++
	return nil
}

// set stores the count for the counter opened n-th.
func (k *fakeKernel) set(n int, value uint64) {
	k.values[k.ids[k.opens[n].fd]] = value
}
