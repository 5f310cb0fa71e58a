package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	evdev "github.com/holoplot/go-evdev"
)

var errNoKeyboards = errors.New("no keyboard with keypad arrows found")

// keypadKeys are the codes a device must report to be used as a keyboard.
var keypadKeys = []evdev.EvCode{evdev.KEY_KP8, evdev.KEY_KP2, evdev.KEY_KP4, evdev.KEY_KP6}

// capabilityQuery answers feature questions about one input device without
// exposing the kernel's bit-array encoding.
type capabilityQuery interface {
	Path() string
	// Supports reports whether the device reports every code of type t.
	Supports(t evdev.EvType, codes ...evdev.EvCode) bool
	// LEDOn reports the current state of an LED.
	LEDOn(code evdev.EvCode) (bool, error)
	Close() error
}

// evdevProbe implements capabilityQuery on top of go-evdev.
type evdevProbe struct {
	dev *evdev.InputDevice
}

func openEvdevProbe(path string) (capabilityQuery, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, err
	}
	return &evdevProbe{dev: dev}, nil
}

func (p *evdevProbe) Path() string { return p.dev.Path() }

func (p *evdevProbe) Supports(t evdev.EvType, codes ...evdev.EvCode) bool {
	capable := make(map[evdev.EvCode]bool)
	for _, c := range p.dev.CapableEvents(t) {
		capable[c] = true
	}
	for _, c := range codes {
		if !capable[c] {
			return false
		}
	}
	return true
}

func (p *evdevProbe) LEDOn(code evdev.EvCode) (bool, error) {
	state, err := p.dev.State(evdev.EV_LED)
	if err != nil {
		return false, err
	}
	return state[code], nil
}

func (p *evdevProbe) Close() error { return p.dev.Close() }

// listEvdevPaths enumerates /dev/input/event* devices.
func listEvdevPaths() ([]string, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, p.Path)
	}
	return out, nil
}

// deviceProber finds keyboards and the NumLock indicator.
type deviceProber struct {
	list   func() ([]string, error)
	open   func(path string) (capabilityQuery, error)
	logger *slog.Logger
}

func newDeviceProber(logger *slog.Logger) *deviceProber {
	return &deviceProber{
		list:   listEvdevPaths,
		open:   openEvdevProbe,
		logger: logger,
	}
}

// findKeyboards returns every device that reports all four keypad arrows.
// Devices that cannot be opened are skipped.
func (p *deviceProber) findKeyboards() ([]string, error) {
	paths, err := p.list()
	if err != nil {
		return nil, err
	}

	var kbds []string
	for _, path := range paths {
		q, err := p.open(path)
		if err != nil {
			p.logger.Debug("skipping input device", "device", path, "error", err)
			continue
		}
		if q.Supports(evdev.EV_KEY, keypadKeys...) {
			kbds = append(kbds, path)
		}
		q.Close()
	}

	if len(kbds) == 0 {
		return nil, errNoKeyboards
	}
	return kbds, nil
}

// queryNumLock returns the initial NumLock state.
//
// If path is empty the first device that reports LED_NUML is used. A missing
// indicator device yields false.
func (p *deviceProber) queryNumLock(path string) bool {
	if path == "" {
		found, err := p.findNumLockDevice()
		if err != nil {
			p.logger.Warn("numlock device lookup failed, assuming off", "error", err)
			return false
		}
		if found == "" {
			p.logger.Info("no numlock indicator found, assuming off")
			return false
		}
		path = found
	}

	q, err := p.open(path)
	if err != nil {
		p.logger.Warn("failed to open numlock device, assuming off", "device", path, "error", err)
		return false
	}
	defer q.Close()

	on, err := q.LEDOn(evdev.LED_NUML)
	if err != nil {
		p.logger.Warn("failed to read numlock state, assuming off", "device", path, "error", err)
		return false
	}
	return on
}

func (p *deviceProber) findNumLockDevice() (string, error) {
	paths, err := p.list()
	if err != nil {
		return "", err
	}
	for _, path := range paths {
		q, err := p.open(path)
		if err != nil {
			continue
		}
		ok := q.Supports(evdev.EV_LED, evdev.LED_NUML)
		q.Close()
		if ok {
			return path, nil
		}
	}
	return "", nil
}

// openKeyboards opens keyboard device files for the dispatch loop. On error
// every file already opened is closed.
func openKeyboards(paths []string) ([]*os.File, error) {
	files := make([]*os.File, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			for _, opened := range files {
				opened.Close()
			}
			return nil, fmt.Errorf("open keyboard %s: %w", path, err)
		}
		files = append(files, f)
	}
	return files, nil
}
