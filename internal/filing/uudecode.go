package filing

import (
	"bufio"
	"bytes"
	"strconv"

	"github.com/rotisserie/eris"
)

// Uudecode decodes a uuencoded payload. The scan skips leading junk until a
// "begin <mode> <name>" header whose mode parses as octal, then decodes
// body lines until the bare "end" marker. EDGAR carries output from broken
// encoders whose lines are mis-sized; those are truncated to the byte count
// their length character declares and decoded again.
func Uudecode(buf []byte) ([]byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(buf))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	begun := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("begin")) {
			continue
		}
		fields := bytes.SplitN(line, []byte(" "), 3)
		if len(fields) == 3 && string(fields[0]) == "begin" {
			if _, err := strconv.ParseInt(string(fields[1]), 8, 32); err == nil {
				begun = true
				break
			}
		}
	}
	if !begun {
		return nil, eris.New("filing: uudecode: no begin header")
	}

	var out bytes.Buffer
	for scanner.Scan() {
		line := scanner.Bytes()
		trimmed := bytes.Trim(line, " \t\r\n\f")
		if bytes.Equal(trimmed, []byte("end")) {
			break
		}
		if len(trimmed) == 0 {
			continue
		}

		data, err := decodeUULine(line)
		if err != nil {
			// Workaround for broken uuencoders: truncate the line to the
			// length its count character promises and retry.
			nbytes := (((int(line[0])-32)&63)*4 + 5) / 3
			if nbytes > len(line) {
				nbytes = len(line)
			}
			data, err = decodeUULine(line[:nbytes])
			if err != nil {
				return nil, eris.Wrap(err, "filing: uudecode line")
			}
		}
		out.Write(data)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "filing: uudecode scan")
	}

	return out.Bytes(), nil
}

// decodeUULine decodes one canonical uuencoded line: a length character
// followed by 4-character groups encoding 3 bytes each. Characters past the
// end of the line stand in for spaces eaten by transit; anything outside
// the uu alphabet is an error.
func decodeUULine(line []byte) ([]byte, error) {
	if len(line) == 0 {
		return nil, eris.New("empty line")
	}

	n := int(line[0]-' ') & 63
	if n == 0 {
		return []byte{}, nil
	}

	out := make([]byte, 0, n)
	pos := 1
	for len(out) < n {
		var group [4]byte
		for i := 0; i < 4; i++ {
			c := byte(' ')
			if pos < len(line) {
				c = line[pos]
				pos++
			}
			if c == '\n' || c == '\r' {
				c = ' '
			}
			if c < ' ' || c > '`' {
				return nil, eris.Errorf("illegal char %q", c)
			}
			group[i] = (c - ' ') & 63
		}
		out = append(out, group[0]<<2|group[1]>>4)
		out = append(out, group[1]<<4|group[2]>>2)
		out = append(out, group[2]<<6|group[3])
	}

	// Anything left must be padding or line-ending noise.
	for ; pos < len(line); pos++ {
		switch line[pos] {
		case ' ', '`', '\n', '\r':
		default:
			return nil, eris.Errorf("trailing garbage %q", line[pos])
		}
	}

	return out[:n], nil
}
