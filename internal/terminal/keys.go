package terminal

import "unicode/utf8"

const (
	keyBackspace = 0x08
	keyEscape    = 0x1b
	keyDelete    = 0x7f
)

// DecodeInput turns raw widget input (an xterm onData chunk or bytes read
// from a raw-mode tty) into line discipline events. Escape sequences and
// control characters other than carriage return and backspace are dropped.
func DecodeInput(data string) []Event {
	var events []Event
	for i := 0; i < len(data); {
		b := data[i]
		switch {
		case b == '\r':
			events = append(events, Enter())
			i++
			if i < len(data) && data[i] == '\n' {
				i++
			}
		case b == '\n':
			events = append(events, Enter())
			i++
		case b == keyDelete || b == keyBackspace:
			events = append(events, Backspace())
			i++
		case b == keyEscape:
			i = skipEscape(data, i)
		case b < 0x20:
			i++
		default:
			r, size := utf8.DecodeRuneInString(data[i:])
			if r != utf8.RuneError || size > 1 {
				events = append(events, Char(r))
			}
			i += size
		}
	}
	return events
}

// skipEscape returns the index just past the escape sequence starting at i.
func skipEscape(data string, i int) int {
	i++
	if i >= len(data) {
		return i
	}
	switch data[i] {
	case '[':
		// CSI: parameters and intermediates, then a final byte in 0x40-0x7e.
		i++
		for i < len(data) {
			c := data[i]
			i++
			if c >= 0x40 && c <= 0x7e {
				break
			}
		}
		return i
	case 'O':
		// SS3 carries exactly one more byte.
		if i+1 < len(data) {
			return i + 2
		}
		return len(data)
	default:
		// Alt-modified key: ESC followed by one character.
		_, size := utf8.DecodeRuneInString(data[i:])
		return i + size
	}
}
