// Package kfmt provides a minimal, allocation-free Printf that can be used
// at any point of the kernel's lifetime, including before the Go allocator
// is available.
package kfmt

import (
	"io"
)

// maxBufSize defines the buffer size for formatting numbers.
const maxBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numFmtBuf = []byte("01234567890123456789012345678901")

	// singleByte is a shared buffer for emitting individual characters
	// without allocating.
	singleByte = []byte(" ")

	// outputSink is the io.Writer that receives Printf output. While it is
	// nil (early boot, before a console is attached) output is discarded.
	outputSink io.Writer
)

// SetOutputSink sets the target for calls to Printf. Passing nil discards
// all output until a sink is attached again.
func SetOutputSink(w io.Writer) {
	outputSink = w
}

// Printf formats its arguments to the currently attached output sink. It
// supports a subset of the fmt verbs:
//
//	%s  string or byte slice
//	%o  integer, base 8
//	%d  integer, base 10
//	%x  integer, base 16, lower-case
//	%t  "true" or "false"
//	%c  single character
//
// An optional decimal width may precede the verb; %d pads with spaces and
// %x/%o pad with zeroes. Pointer verbs are intentionally unsupported as
// they would drag in reflect and with it the runtime allocator.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but writes the formatted output to
// the supplied io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		padLen, argIndex int
		fmtLen           = len(format)
	)

	for i := 0; i < fmtLen; i++ {
		if format[i] != '%' {
			writeByte(w, format[i])
			continue
		}

		// scan past the width (if any) to the verb
		padLen = 0
	parseFmt:
		for i++; i < fmtLen; i++ {
			switch ch := format[i]; {
			case ch == '%':
				writeByte(w, '%')
				break parseFmt
			case ch >= '0' && ch <= '9':
				padLen = (padLen * 10) + int(ch-'0')
				continue
			case ch == 'd' || ch == 'x' || ch == 'o' || ch == 's' || ch == 't' || ch == 'c':
				if argIndex >= len(args) {
					write(w, errMissingArg)
					break parseFmt
				}

				switch ch {
				case 'o':
					fmtInt(w, args[argIndex], 8, padLen)
				case 'd':
					fmtInt(w, args[argIndex], 10, padLen)
				case 'x':
					fmtInt(w, args[argIndex], 16, padLen)
				case 's':
					fmtString(w, args[argIndex], padLen)
				case 't':
					fmtBool(w, args[argIndex])
				case 'c':
					fmtChar(w, args[argIndex])
				}

				argIndex++
				break parseFmt
			default:
				write(w, errNoVerb)
				break parseFmt
			}
		}
	}

	for ; argIndex < len(args); argIndex++ {
		write(w, errExtraArg)
	}
}

// fmtBool prints a formatted version of boolean value v.
func fmtBool(w io.Writer, v interface{}) {
	bVal, ok := v.(bool)
	if !ok {
		write(w, errWrongArgType)
		return
	}

	if bVal {
		write(w, trueValue)
	} else {
		write(w, falseValue)
	}
}

// fmtChar prints a byte or rune value v as a single character.
func fmtChar(w io.Writer, v interface{}) {
	switch castedVal := v.(type) {
	case byte:
		writeByte(w, castedVal)
	case rune:
		writeByte(w, byte(castedVal))
	default:
		write(w, errWrongArgType)
	}
}

// fmtString prints a formatted version of string or []byte value v, applying
// the padding specified by padLen.
func fmtString(w io.Writer, v interface{}, padLen int) {
	switch castedVal := v.(type) {
	case string:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		// converting the string to a byte slice would allocate so emit
		// it one byte at a time.
		for i := 0; i < len(castedVal); i++ {
			writeByte(w, castedVal[i])
		}
	case []byte:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		write(w, castedVal)
	default:
		write(w, errWrongArgType)
	}
}

// fmtRepeat writes count bytes with value ch.
func fmtRepeat(w io.Writer, ch byte, count int) {
	for i := 0; i < count; i++ {
		writeByte(w, ch)
	}
}

// fmtInt prints out a formatted version of v in the requested base, applying
// the padding specified by padLen. All built-in signed and unsigned integer
// types are supported.
func fmtInt(w io.Writer, v interface{}, base, padLen int) {
	var (
		sval             int64
		uval             uint64
		padCh            byte
		left, right, end int
	)

	if padLen >= maxBufSize {
		padLen = maxBufSize - 1
	}

	if base == 10 {
		padCh = ' '
	} else {
		padCh = '0'
	}

	switch iVal := v.(type) {
	case uint8:
		uval = uint64(iVal)
	case uint16:
		uval = uint64(iVal)
	case uint32:
		uval = uint64(iVal)
	case uint64:
		uval = iVal
	case uint:
		uval = uint64(iVal)
	case uintptr:
		uval = uint64(iVal)
	case int8:
		sval = int64(iVal)
	case int16:
		sval = int64(iVal)
	case int32:
		sval = int64(iVal)
	case int64:
		sval = iVal
	case int:
		sval = int64(iVal)
	default:
		write(w, errWrongArgType)
		return
	}

	if sval < 0 {
		uval = uint64(-sval)
	} else if sval > 0 {
		uval = uint64(sval)
	}

	for right < maxBufSize {
		remainder := uval % uint64(base)
		if remainder < 10 {
			numFmtBuf[right] = byte(remainder) + '0'
		} else {
			// map 10 to 15 -> a-f
			numFmtBuf[right] = byte(remainder-10) + 'a'
		}

		right++

		uval /= uint64(base)
		if uval == 0 {
			break
		}
	}

	// Apply padding if required
	for ; right-left < padLen; right++ {
		numFmtBuf[right] = padCh
	}

	// Place the negative sign in the rightmost blank pad character or, if
	// no padding is in effect, append it before reversing.
	if sval < 0 {
		for end = right - 1; numFmtBuf[end] == ' '; end-- {
		}

		if end == right-1 {
			right++
		}

		numFmtBuf[end+1] = '-'
	}

	// Reverse in place
	end = right
	for right = right - 1; left < right; left, right = left+1, right-1 {
		numFmtBuf[left], numFmtBuf[right] = numFmtBuf[right], numFmtBuf[left]
	}

	write(w, numFmtBuf[0:end])
}

func writeByte(w io.Writer, ch byte) {
	singleByte[0] = ch
	write(w, singleByte)
}

func write(w io.Writer, p []byte) {
	if w != nil {
		w.Write(p)
	}
}
