package main

// Linux input event types and codes (from <linux/input-event-codes.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_REL = 0x02
	EV_LED = 0x11

	SYN_REPORT = 0x00

	REL_X = 0x00
	REL_Y = 0x01

	BTN_LEFT = 0x110

	// Numeric keypad arrows
	KEY_KP8 = 72
	KEY_KP4 = 75
	KEY_KP6 = 77
	KEY_KP2 = 80

	LED_NUML = 0x00
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Motion engine defaults
const (
	defaultTickIntervalMS = 10  // Emission cadence (ms)
	defaultMinStep        = 1   // Step while the hold is short
	defaultMaxStep        = 10  // Saturated step
	defaultMinPoint       = 50  // Ticks before acceleration starts
	defaultMaxPoint       = 200 // Ticks at which the step saturates

	defaultUinputPath  = "/dev/uinput"
	defaultPointerName = "Virtual Mouse"
	defaultIPCSocket   = "/tmp/numpadmouse.sock"
	defaultStatusAddr  = "127.0.0.1:3002"
	defaultStatusPath  = "/ws/status"

	// maxBatchEvents bounds a single read from a keyboard source.
	maxBatchEvents = 64
)
