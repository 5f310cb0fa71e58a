//go:build linux

package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl request encoding (Linux _IOC macro)
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1
)

func ioc(dir uint32, typ uint32, nr uint32, size uint32) uint {
	return uint((dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift))
}

var (
	uiDevCreate  = ioc(iocNone, 'U', 1, 0)
	uiDevDestroy = ioc(iocNone, 'U', 2, 0)
	uiSetEvBit   = ioc(iocWrite, 'U', 100, uint32(unsafe.Sizeof(int32(0))))
	uiSetKeyBit  = ioc(iocWrite, 'U', 101, uint32(unsafe.Sizeof(int32(0))))
	uiSetRelBit  = ioc(iocWrite, 'U', 102, uint32(unsafe.Sizeof(int32(0))))
)

const (
	uinputMaxNameSize = 80
	absCnt            = 64
	busVirtual        = 0x06
)

type inputID struct {
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// uinputUserDev is the legacy struct uinput_user_dev setup record.
type uinputUserDev struct {
	Name         [uinputMaxNameSize]byte
	ID           inputID
	FFEffectsMax uint32
	AbsMax       [absCnt]int32
	AbsMin       [absCnt]int32
	AbsFuzz      [absCnt]int32
	AbsFlat      [absCnt]int32
}

// errShortWrite means the kernel accepted only part of a motion report.
var errShortWrite = errors.New("short write to virtual pointer")

// uinputPointer is a relative pointer device created through /dev/uinput.
type uinputPointer struct {
	fd   int
	path string

	closeOnce sync.Once
}

// newUinputPointer creates and registers a virtual mouse with a left button
// and REL_X/REL_Y axes.
func newUinputPointer(path, name string) (*uinputPointer, error) {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	p := &uinputPointer{fd: fd, path: path}
	if err := p.setup(name); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return p, nil
}

func (p *uinputPointer) setup(name string) error {
	bits := []struct {
		req  uint
		val  int
		what string
	}{
		{uiSetEvBit, EV_KEY, "UI_SET_EVBIT EV_KEY"},
		{uiSetKeyBit, BTN_LEFT, "UI_SET_KEYBIT BTN_LEFT"},
		{uiSetEvBit, EV_REL, "UI_SET_EVBIT EV_REL"},
		{uiSetRelBit, REL_X, "UI_SET_RELBIT REL_X"},
		{uiSetRelBit, REL_Y, "UI_SET_RELBIT REL_Y"},
	}
	for _, b := range bits {
		if err := unix.IoctlSetInt(p.fd, b.req, b.val); err != nil {
			return fmt.Errorf("%s: %w", b.what, err)
		}
	}

	var dev uinputUserDev
	copy(dev.Name[:uinputMaxNameSize-1], name)
	dev.ID = inputID{BusType: busVirtual, Vendor: 0x1, Product: 0x1, Version: 1}

	var b bytes.Buffer
	_ = binary.Write(&b, binary.NativeEndian, &dev)
	if err := writeFull(p.fd, b.Bytes()); err != nil {
		return fmt.Errorf("write uinput_user_dev: %w", err)
	}

	if err := unix.IoctlSetInt(p.fd, uiDevCreate, 0); err != nil {
		return fmt.Errorf("UI_DEV_CREATE: %w", err)
	}
	return nil
}

// emitMotion writes REL_X, REL_Y and SYN_REPORT in a single write.
func (p *uinputPointer) emitMotion(dx, dy int32) error {
	return writeFull(p.fd, motionReport(dx, dy))
}

// Close destroys the virtual device and closes the uinput handle.
func (p *uinputPointer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if derr := unix.IoctlSetInt(p.fd, uiDevDestroy, 0); derr != nil {
			err = fmt.Errorf("UI_DEV_DESTROY: %w", derr)
		}
		if cerr := unix.Close(p.fd); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", p.path, cerr)
		}
	})
	return err
}

// motionReport builds the three-record relative motion report.
func motionReport(dx, dy int32) []byte {
	return encodeEvents(
		inputEvent{Type: EV_REL, Code: REL_X, Value: dx},
		inputEvent{Type: EV_REL, Code: REL_Y, Value: dy},
		inputEvent{Type: EV_SYN, Code: SYN_REPORT},
	)
}

// writeFull performs one write and reports anything short of the full
// buffer as errShortWrite. It does not retry.
func writeFull(fd int, b []byte) error {
	n, err := unix.Write(fd, b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("%w: wrote %d of %d bytes", errShortWrite, n, len(b))
	}
	return nil
}
