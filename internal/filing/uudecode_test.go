package filing

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uuencode produces a canonical uuencoded stream for round-trip checks.
func uuencode(name string, data []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "begin 644 %s\n", name)

	for off := 0; off < len(data); off += 45 {
		end := off + 45
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]

		buf.WriteByte(byte(len(chunk)) + 32)
		for i := 0; i < len(chunk); i += 3 {
			var b [3]byte
			copy(b[:], chunk[i:])
			buf.WriteByte(uuChar(b[0] >> 2))
			buf.WriteByte(uuChar(b[0]<<4&0x3f | b[1]>>4))
			buf.WriteByte(uuChar(b[1]<<2&0x3f | b[2]>>6))
			buf.WriteByte(uuChar(b[2] & 0x3f))
		}
		buf.WriteByte('\n')
	}

	buf.WriteString("`\nend\n")
	return buf.Bytes()
}

func uuChar(b byte) byte {
	if b == 0 {
		return '`'
	}
	return b + 32
}

func TestUudecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("a"),
		[]byte("ab"),
		[]byte("abc"),
		[]byte("%PDF-1.4 binary \x00\x01\x02\xff\xfe payload"),
		bytes.Repeat([]byte{0x00, 0x7f, 0x80, 0xff}, 64),
		make([]byte, 45),
		make([]byte, 46),
	}
	for i, payload := range payloads {
		decoded, err := Uudecode(uuencode("doc.pdf", payload))
		require.NoError(t, err, "payload %d", i)
		assert.Equal(t, payload, decoded, "payload %d", i)
	}
}

func TestUudecodeSkipsLeadingJunk(t *testing.T) {
	encoded := append([]byte("<PDF>\nsome preamble\n"), uuencode("doc.pdf", []byte("hello world"))...)
	encoded = append(encoded, []byte("</PDF>\n")...)

	decoded, err := Uudecode(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), decoded)
}

func TestUudecodeRejectsFakeBeginLines(t *testing.T) {
	// "begin" with a non-octal mode is prose, not a header.
	encoded := append([]byte("begin with caution\n"), uuencode("doc.bin", []byte{1, 2, 3})...)

	decoded, err := Uudecode(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, decoded)
}

func TestUudecodeMissingBegin(t *testing.T) {
	_, err := Uudecode([]byte("no header here\njust text\n"))
	assert.Error(t, err)
}

func TestUudecodeBrokenEncoderLine(t *testing.T) {
	payload := []byte("exactly forty five bytes of data live here!!!")[:45]
	encoded := uuencode("doc.bin", payload)

	// Smash trailing garbage onto the first body line the way broken
	// encoders do; the declared length still bounds the real data.
	lines := bytes.SplitN(encoded, []byte("\n"), 3)
	corrupted := bytes.Join([][]byte{lines[0], append(lines[1], []byte("zz~q")...), lines[2]}, []byte("\n"))

	decoded, err := Uudecode(corrupted)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestUudecodeShortFinalLine(t *testing.T) {
	// Some encoders drop trailing spaces; missing characters decode as
	// zero bits, which the length character then clips away.
	var buf bytes.Buffer
	buf.WriteString("begin 644 f.bin\n")
	buf.WriteString("#0V%T\n") // "Cat", full group
	buf.WriteString("!80\n")   // "a" with the padding chars eaten
	buf.WriteString("`\nend\n")

	decoded, err := Uudecode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []byte("Cata"), decoded)
}
