package nomenclator

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/brensch/nomenclator/internal/util"
)

type elementHandler func(dec *xml.Decoder, start *xml.StartElement) error

// walkDocument checks that the document root is named root and hands every
// direct child whose local name has a handler to that handler. Other children
// are skipped.
func walkDocument(r io.Reader, root string, handlers map[string]elementHandler) error {
	dec := util.NewXMLDecoder(r)
	sawRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !sawRoot {
			if start.Name.Local != root {
				return fmt.Errorf("unexpected root element <%s>, want <%s>", start.Name.Local, root)
			}
			sawRoot = true
			continue
		}
		handle, ok := handlers[start.Name.Local]
		if !ok {
			if err := dec.Skip(); err != nil {
				return err
			}
			continue
		}
		if err := handle(dec, &start); err != nil {
			return err
		}
	}
	if !sawRoot {
		return errors.New("document has no root element")
	}
	return nil
}

// decodeList reads every <elem> child of <root> into a slice, in document
// order. A record missing a required field fails the whole list.
func decodeList[R any](r io.Reader, root, elem string) ([]R, error) {
	var out []R
	err := walkDocument(r, root, map[string]elementHandler{
		elem: func(dec *xml.Decoder, start *xml.StartElement) error {
			var rec R
			if err := dec.DecodeElement(&rec, start); err != nil {
				return fmt.Errorf("<%s> #%d: %w", elem, len(out)+1, err)
			}
			if err := checkRequired(&rec); err != nil {
				return fmt.Errorf("<%s> #%d: %w", elem, len(out)+1, err)
			}
			out = append(out, rec)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
