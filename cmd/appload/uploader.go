package main

import (
	"errors"
	"fmt"
	"log"

	tty "github.com/mattn/go-tty"
)

// The image travels as checksummed hex lines. Every line opens with a ':',
// carries a byte count, a record type, a 32-bit offset and the payload, and
// closes with a two's-complement checksum over everything but the colon.
// The receiver answers each line with a one-character status line: '.' for
// accepted, '!' for a checksum or state error (the line is retried), while
// '#' and '@' prefix log output that is passed through to the operator.
const (
	recData = 0x00
	recEnd  = 0x01
	recSize = 0x02

	dataLineBytes = 32
	maxRetries    = 5
)

type uploader struct {
	io *tty.TTY
}

func newUploader(devTTYPath string) (*uploader, error) {
	ttyObj, err := tty.OpenDevice(devTTYPath)
	if err != nil {
		return nil, err
	}
	ttyObj.MustRaw()
	return &uploader{io: ttyObj}, nil
}

func (u *uploader) Close() {
	u.io.Close()
}

// Send streams the packed image: a size record, the data records, then the
// end record. Each record waits for its acknowledgement before the next one
// goes out.
func (u *uploader) Send(img []byte) error {
	sizePayload := []byte{
		byte(len(img)), byte(len(img) >> 8), byte(len(img) >> 16), byte(len(img) >> 24),
	}
	if err := u.sendRecord(encodeRecord(recSize, 0, sizePayload)); err != nil {
		return err
	}

	for offset := 0; offset < len(img); offset += dataLineBytes {
		end := offset + dataLineBytes
		if end > len(img) {
			end = len(img)
		}
		if err := u.sendRecord(encodeRecord(recData, uint32(offset), img[offset:end])); err != nil {
			return err
		}
	}

	return u.sendRecord(encodeRecord(recEnd, 0, nil))
}

// sendRecord transmits one line and waits for its acknowledgement,
// retransmitting on '!' until the receiver gives up counts as exhausted.
func (u *uploader) sendRecord(line string) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		if *verboseFlag {
			log.Printf("--> %s", line)
		}
		if _, err := u.io.Output().WriteString(line + "\n"); err != nil {
			return err
		}

		acked, err := u.awaitAck()
		if err != nil {
			return err
		}
		if acked {
			return nil
		}
		log.Printf("retrying %s", line)
	}
	return errors.New("too many errors in a row, aborting")
}

// awaitAck consumes receiver output until a status line arrives. Comment and
// debug lines are passed through to the operator's log.
func (u *uploader) awaitAck() (bool, error) {
	var buffer [128]byte
	for {
		l, err := u.readLine(buffer[:])
		if err != nil {
			return false, err
		}
		if len(l) == 0 {
			continue
		}

		switch l[0] {
		case '.':
			return true, nil
		case '!':
			log.Printf("!!! %s", l[1:])
			return false, nil
		case '#':
			log.Print("### ", l[1:])
		case '@':
			if *verboseFlag {
				log.Print("@@@ ", l[1:])
			}
		default:
			log.Printf("ignoring unexpected response: %s", l)
		}
	}
}

// readLine collects bytes up to a newline, dropping control characters and
// anything past the buffer.
func (u *uploader) readLine(data []byte) (string, error) {
	count := 0
	dropped := 0
	for {
		r, err := u.io.Input().Read(data[count : count+1])
		if err != nil {
			return "", err
		}
		if r == 0 {
			continue
		}
		switch {
		case data[count] < 32 && data[count] != '\n':
			continue
		case data[count] == '\n':
			if dropped != 0 {
				log.Printf("dropped %d characters from line", dropped)
			}
			return string(data[:count]), nil
		default:
			if count == len(data)-1 {
				dropped++
				continue
			}
			count++
		}
	}
}

// encodeRecord renders one protocol line for the given record type, offset
// and payload.
func encodeRecord(recType byte, offset uint32, payload []byte) string {
	sum := byte(len(payload)) + recType +
		byte(offset) + byte(offset>>8) + byte(offset>>16) + byte(offset>>24)
	for _, b := range payload {
		sum += b
	}

	line := fmt.Sprintf(":%02X%02X%08X", len(payload), recType, offset)
	for _, b := range payload {
		line += fmt.Sprintf("%02X", b)
	}
	return line + fmt.Sprintf("%02X", byte(-sum))
}
