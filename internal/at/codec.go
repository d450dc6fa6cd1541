package at

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// MaxLine caps a single response line; longer input is returned in pieces.
const MaxLine = 1024

var (
	// ErrTimeout is returned by ReadLine when no terminator arrived in time.
	ErrTimeout = errors.New("at: read timeout")
	// ErrLineTooLong is returned when a line fills MaxLine without a terminator.
	ErrLineTooLong = errors.New("at: line too long")
)

// LineReader splits the byte stream of a modem into CRLF lines. The underlying
// reader is expected to return (0, nil) when its own read timeout expires, as a
// go.bug.st/serial port does.
type LineReader struct {
	r io.Reader

	line [MaxLine]byte
	n    int

	buf        [256]byte
	head, tail int
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: r}
}

// ReadLine returns the next line including its terminator. On ErrTimeout the
// bytes received so far are returned too and stay pending for the next call.
// The returned slice is only valid until the next call on the reader.
func (l *LineReader) ReadLine(timeout time.Duration) ([]byte, error) {
	if l.n == 0 {
		clear(l.line[:])
	}
	deadline := time.Now().Add(timeout)
	for {
		for l.head < l.tail {
			c := l.buf[l.head]
			l.head++
			l.line[l.n] = c
			l.n++
			if c == '\n' {
				line := l.line[:l.n]
				l.n = 0
				return line, nil
			}
			if l.n == MaxLine {
				line := l.line[:l.n]
				l.n = 0
				return line, ErrLineTooLong
			}
		}
		if !time.Now().Before(deadline) {
			return l.line[:l.n], ErrTimeout
		}
		n, err := l.r.Read(l.buf[:])
		l.head, l.tail = 0, n
		if n == 0 && err != nil {
			return l.line[:l.n], err
		}
	}
}

// Read hands out bytes already buffered before reading from the transport,
// so a raw reader taking over the stream does not lose data.
func (l *LineReader) Read(p []byte) (int, error) {
	if l.head < l.tail {
		n := copy(p, l.buf[l.head:l.tail])
		l.head += n
		return n, nil
	}
	return l.r.Read(p)
}

// Discard drops a pending partial line.
func (l *LineReader) Discard() {
	l.n = 0
}

// ReadFull reads exactly len(p) raw bytes, starting with whatever is already
// buffered. It gives up with ErrTimeout once timeout has elapsed.
func (l *LineReader) ReadFull(p []byte, timeout time.Duration) (int, error) {
	got := copy(p, l.buf[l.head:l.tail])
	l.head += got
	deadline := time.Now().Add(timeout)
	for got < len(p) {
		if !time.Now().Before(deadline) {
			return got, ErrTimeout
		}
		n, err := l.r.Read(p[got:])
		got += n
		if n == 0 && err != nil {
			return got, err
		}
	}
	return got, nil
}

// ParseArgs scans comma separated fields out of buf according to format:
// 'i' is an unsigned decimal and 's' a string. Each dst entry may be *int,
// *[]byte (a view into buf), *string (a copy) or nil. Parsing stops at the end
// of the line or at the first malformed integer; the number of fields parsed
// is returned. Commas between double quotes do not split fields.
func ParseArgs(buf []byte, format string, dst ...any) int {
	pos, count := 0, 0
	for i := 0; i < len(format); i++ {
		if pos >= len(buf) {
			break
		}
		end, last := fieldEnd(buf, pos)
		field := buf[pos:end]
		var d any
		if i < len(dst) {
			d = dst[i]
		}
		switch format[i] {
		case 'i':
			v, ok := parseUint(field)
			if !ok {
				return count
			}
			if p, ok := d.(*int); ok {
				*p = v
			}
		case 's':
			switch p := d.(type) {
			case *[]byte:
				*p = field
			case *string:
				*p = string(field)
			}
		default:
			return count
		}
		count++
		if last {
			break
		}
		pos = end + 1
	}
	return count
}

func fieldEnd(buf []byte, pos int) (int, bool) {
	quoted := false
	for i := pos; i < len(buf); i++ {
		switch buf[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				return i, false
			}
		case '\r', '\n':
			return i, true
		}
	}
	return len(buf), true
}

func parseUint(b []byte) (int, bool) {
	v := 0
	for _, c := range b {
		switch {
		case c == ' ' || c == '\r' || c == '\n':
		case c >= '0' && c <= '9':
			v = v*10 + int(c-'0')
		default:
			return 0, false
		}
	}
	return v, true
}

// Unquote trims blanks and one pair of surrounding double quotes.
func Unquote(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		return b[1 : len(b)-1]
	}
	return b
}

// Raw is a string argument that FormatArgs emits without quotes.
type Raw string

// FormatArgs joins command arguments with commas. Integers and Raw values are
// written as is, strings are quoted.
func FormatArgs(args ...any) string {
	var sb strings.Builder
	for i, a := range args {
		if i > 0 {
			sb.WriteByte(',')
		}
		switch v := a.(type) {
		case int:
			sb.WriteString(strconv.Itoa(v))
		case Raw:
			sb.WriteString(string(v))
		case string:
			sb.WriteByte('"')
			sb.WriteString(v)
			sb.WriteByte('"')
		}
	}
	return sb.String()
}

// Encode builds the wire form of a command: AT<token><args>\r.
func Encode(cmd Command, args string) []byte {
	tok := table[cmd].Token
	b := make([]byte, 0, 2+len(tok)+len(args)+1)
	b = append(b, "AT"...)
	b = append(b, tok...)
	b = append(b, args...)
	return append(b, '\r')
}
