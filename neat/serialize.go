package neat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Serializer receives an ordered stream of primitive values.
// The order in which values are appended is the format: a Deserializer must
// read them back in exactly the same order.
type Serializer interface {
	AppendInt(v int64)
	AppendFloat(v float64)
	AppendBool(v bool)
	NewLine()
}

// Deserializer yields primitive values in the order they were appended.
type Deserializer interface {
	NextInt() (int64, error)
	NextFloat() (float64, error)
	NextBool() (bool, error)
}

// --------------------------- Text format ---------------------------

// TextSerializer writes values as whitespace separated tokens.
// Write errors are sticky and reported by Flush.
type TextSerializer struct {
	w        *bufio.Writer
	err      error
	startOfL bool
}

// NewTextSerializer creates a serializer writing to w.
func NewTextSerializer(w io.Writer) *TextSerializer {
	return &TextSerializer{w: bufio.NewWriter(w), startOfL: true}
}

func (s *TextSerializer) token(tok string) {
	if s.err != nil {
		return
	}
	if !s.startOfL {
		if s.err = s.w.WriteByte(' '); s.err != nil {
			return
		}
	}
	_, s.err = s.w.WriteString(tok)
	s.startOfL = false
}

// AppendInt appends an integer.
func (s *TextSerializer) AppendInt(v int64) {
	s.token(strconv.FormatInt(v, 10))
}

// AppendFloat appends a float using the shortest exact representation.
func (s *TextSerializer) AppendFloat(v float64) {
	s.token(strconv.FormatFloat(v, 'g', -1, 64))
}

// AppendBool appends a boolean as 1 or 0.
func (s *TextSerializer) AppendBool(v bool) {
	if v {
		s.token("1")
	} else {
		s.token("0")
	}
}

// NewLine ends the current line. Lines only help humans reading the output.
func (s *TextSerializer) NewLine() {
	if s.err != nil {
		return
	}
	s.err = s.w.WriteByte('\n')
	s.startOfL = true
}

// Flush writes any buffered data and returns the first error encountered.
func (s *TextSerializer) Flush() error {
	if s.err != nil {
		return s.err
	}
	return s.w.Flush()
}

// TextDeserializer reads tokens produced by TextSerializer.
type TextDeserializer struct {
	sc *bufio.Scanner
}

// NewTextDeserializer creates a deserializer reading from r.
func NewTextDeserializer(r io.Reader) *TextDeserializer {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	return &TextDeserializer{sc: sc}
}

func (d *TextDeserializer) next() (string, error) {
	if !d.sc.Scan() {
		if err := d.sc.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return d.sc.Text(), nil
}

// NextInt reads an integer.
func (d *TextDeserializer) NextInt() (int64, error) {
	tok, err := d.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer token %q: %w", tok, err)
	}
	return v, nil
}

// NextFloat reads a float.
func (d *TextDeserializer) NextFloat() (float64, error) {
	tok, err := d.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float token %q: %w", tok, err)
	}
	return v, nil
}

// NextBool reads a boolean.
func (d *TextDeserializer) NextBool() (bool, error) {
	tok, err := d.next()
	if err != nil {
		return false, err
	}
	switch tok {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid bool token %q", tok)
}

// --------------------------- Helpers ---------------------------

var errNegativeCount = errors.New("negative element count")

// fieldReader wraps a Deserializer and keeps the first error, so that long
// sequences of reads need a single check at the end.
type fieldReader struct {
	des Deserializer
	err error
}

func (r *fieldReader) readInt() int64 {
	if r.err != nil {
		return 0
	}
	v, err := r.des.NextInt()
	r.err = err
	return v
}

func (r *fieldReader) readFloat() float64 {
	if r.err != nil {
		return 0
	}
	v, err := r.des.NextFloat()
	r.err = err
	return v
}

func (r *fieldReader) readBool() bool {
	if r.err != nil {
		return false
	}
	v, err := r.des.NextBool()
	r.err = err
	return v
}

func (r *fieldReader) count() int {
	n := r.readInt()
	if r.err == nil && n < 0 {
		r.err = errNegativeCount
	}
	return int(n)
}

func (r *fieldReader) gene() Gene {
	return Gene{
		Innovation: InnovationID(r.readInt()),
		From:       NeuronID(r.readInt()),
		To:         NeuronID(r.readInt()),
		Weight:     r.readFloat(),
		Enabled:    r.readBool(),
	}
}

func serializeGene(ser Serializer, g Gene) {
	ser.AppendInt(int64(g.Innovation))
	ser.AppendInt(int64(g.From))
	ser.AppendInt(int64(g.To))
	ser.AppendFloat(g.Weight)
	ser.AppendBool(g.Enabled)
	ser.NewLine()
}
