package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var ErrSelectionCanceled = errors.New("device selection canceled")

type pickAction int

const (
	pickNone pickAction = iota
	pickUp
	pickDown
	pickConfirm
	pickCancel
)

// decodeKey maps one raw terminal read to a picker action.
func decodeKey(b []byte) pickAction {
	switch {
	case len(b) == 3 && b[0] == 0x1b && b[1] == '[' && b[2] == 'A':
		return pickUp
	case len(b) == 3 && b[0] == 0x1b && b[1] == '[' && b[2] == 'B':
		return pickDown
	case len(b) != 1:
		return pickNone
	}
	switch b[0] {
	case '\r', '\n':
		return pickConfirm
	case 3, 'q':
		return pickCancel
	case 'k':
		return pickUp
	case 'j':
		return pickDown
	}
	return pickNone
}

type devicePicker struct {
	devices []DeviceInfo
	cursor  int
}

func (p *devicePicker) apply(a pickAction) {
	switch a {
	case pickUp:
		if p.cursor > 0 {
			p.cursor--
		}
	case pickDown:
		if p.cursor < len(p.devices)-1 {
			p.cursor++
		}
	}
}

// lines is the height of one render, used to move the cursor back up.
func (p *devicePicker) lines() int { return len(p.devices) + 2 }

func (p *devicePicker) render(w io.Writer) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Escolha o microfone (↑/↓, Enter confirma):\r\n\r\n")
	for i, d := range p.devices {
		warn := ""
		if IsBluetooth(d.Name) {
			warn = " \x1b[33m[⚠ bluetooth: qualidade menor para avaliação]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, warn)
			continue
		}
		fmt.Fprintf(w, "    %s%s\r\n", d.Name, warn)
	}
}

// run drives the picker from raw key reads until confirm or cancel.
func (p *devicePicker) run(in io.Reader, out io.Writer) (*DeviceInfo, error) {
	p.render(out)
	buf := make([]byte, 3)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		switch a := decodeKey(buf[:n]); a {
		case pickConfirm:
			fmt.Fprint(out, "\r\n")
			return &p.devices[p.cursor], nil
		case pickCancel:
			fmt.Fprint(out, "\r\n")
			return nil, ErrSelectionCanceled
		default:
			p.apply(a)
		}
		fmt.Fprintf(out, "\x1b[%dA", p.lines())
		p.render(out)
	}
}

// SelectDevice lets the user pick the microphone used for practice.
// With a single device it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("no capture devices found: %w", ErrDeviceUnavailable)
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, saved)

	p := &devicePicker{devices: devices}
	return p.run(os.Stdin, os.Stdout)
}
