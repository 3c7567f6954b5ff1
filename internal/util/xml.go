package util

import (
	"encoding/xml"
	"io"

	"golang.org/x/net/html/charset"
)

// NewXMLDecoder returns a decoder that honours the encoding declared in the
// XML prolog (ISO-8859-1, windows-1252, UTF-8, ...).
func NewXMLDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}
