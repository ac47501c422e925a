package filing

import (
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

// Decode turns raw envelope bytes into text. EDGAR filings predate any
// charset discipline, so the ladder tries UTF-8 first, then ISO 8859-1,
// then ISO 8859-5. An empty string with ok=false means every rung failed.
func Decode(buf []byte) (string, bool) {
	if utf8.Valid(buf) {
		return string(buf), true
	}

	zap.L().Warn("falling back to ISO 8859-1 after failing to decode with UTF-8")
	if text, err := charmap.ISO8859_1.NewDecoder().Bytes(buf); err == nil {
		return string(text), true
	}

	zap.L().Warn("falling back to ISO 8859-5 after failing to decode with ISO 8859-1")
	if text, err := charmap.ISO8859_5.NewDecoder().Bytes(buf); err == nil {
		return string(text), true
	}

	zap.L().Error("unable to decode filing buffer; giving up")
	return "", false
}
