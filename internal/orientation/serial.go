package orientation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/sweeney/wrist-pager/internal/logic"
)

// ErrBadLine is returned by ParseEulerLine for lines that are not a
// "roll pitch yaw" triple.
var ErrBadLine = errors.New("orientation: malformed euler line")

// SerialSource reads fused Euler angles streamed by an external sensor hub
// (one "roll pitch yaw" line per report, degrees).
type SerialSource struct {
	port io.ReadCloser
	slot Slot[logic.Sample]
}

// OpenSerial opens a serial port and returns a source reading from it.
func OpenSerial(portName string, baud uint) (*SerialSource, error) {
	opts := serial.OpenOptions{
		PortName:        portName,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", portName, err)
	}
	log.Printf("serial: opened %s at %d baud", portName, baud)
	return NewSerialSource(port), nil
}

// NewSerialSource wraps an already open stream.
func NewSerialSource(port io.ReadCloser) *SerialSource {
	return &SerialSource{port: port}
}

// Run reads lines until ctx is done or the stream fails.
// Malformed lines are skipped. The port is closed on return.
func (s *SerialSource) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		s.port.Close()
	}()

	reader := bufio.NewReader(s.port)
	var skipped int
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("serial: read: %w", err)
		}

		sample, err := ParseEulerLine(line)
		if err != nil {
			skipped++
			if skipped == 1 || skipped%100 == 0 {
				log.Printf("serial: skipped %d malformed lines (last %q)", skipped, strings.TrimSpace(line))
			}
			continue
		}
		s.slot.Put(sample)
	}
}

// Latest implements Source.
func (s *SerialSource) Latest() logic.Sample {
	v, _ := s.slot.Peek()
	return v
}

// ParseEulerLine parses "roll pitch yaw" in degrees. Fields may be separated
// by spaces, tabs or commas. Yaw reported in (-180,180] is mapped to [0,360).
func ParseEulerLine(line string) (logic.Sample, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == '\r' || r == '\n'
	})
	if len(fields) != 3 {
		return logic.Sample{}, fmt.Errorf("%w: %d fields", ErrBadLine, len(fields))
	}

	var vals [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return logic.Sample{}, fmt.Errorf("%w: %v", ErrBadLine, err)
		}
		vals[i] = v
	}

	yaw := vals[2]
	if yaw < 0 {
		yaw += 360
	}
	yaw = math.Mod(yaw, 360)

	return logic.Sample{Roll: vals[0], Pitch: vals[1], Yaw: yaw}, nil
}
