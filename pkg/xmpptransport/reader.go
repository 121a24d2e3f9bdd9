package xmpptransport

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"io"

	"github.com/pkg/errors"

	"github.com/exavolt/xmpp-client/pkg/xmppclient"
	"github.com/exavolt/xmpp-client/pkg/xmppcore"
)

var ErrElementTooLarge = errors.New("xmpptransport: element exceeds size limit")

// elementReader splits an inbound stream into its top-level elements.
type elementReader struct {
	decoder *xml.Decoder
	source  *limitedReader
	maxSize int64
}

func newElementReader(r io.Reader, maxSize int64) *elementReader {
	//TODO: check for restricted-xml (RFC 6120  11.1)
	source := newLimitedReader(r)
	return &elementReader{
		decoder: xml.NewDecoder(source),
		source:  source,
		maxSize: maxSize,
	}
}

func (er *elementReader) next() (xmppclient.Element, error) {
	for {
		// Each top-level token, and the element it may open, gets maxSize
		// bytes of input.
		er.source.limitNext(er.maxSize)
		token, err := er.decoder.Token()
		if err != nil {
			return xmppclient.Element{}, err
		}
		switch tok := token.(type) {
		case xml.StartElement:
			if tok.Name.Space == xmppcore.JabberStreamsNS && tok.Name.Local == "stream" {
				tok = tok.Copy()
				return xmppclient.Element{
					Name:        tok.Name,
					Attr:        tok.Attr,
					OpensStream: true,
				}, nil
			}
			raw, err := er.readElement(tok)
			if err != nil {
				return xmppclient.Element{}, err
			}
			return xmppclient.Element{
				Name: tok.Name,
				Attr: withoutNamespaceDecls(tok.Attr),
				Raw:  raw,
			}, nil
		case xml.EndElement:
			// The decoder only lets the stream element end here.
			return xmppclient.Element{Name: tok.Name, ClosesStream: true}, nil
		}
		// whitespace keepalives, the XML declaration, comments
	}
}

// readElement re-encodes the element that start opens. The namespaces
// resolved by the decoder are written out explicitly, so the result stands
// on its own outside of the stream.
func (er *elementReader) readElement(start xml.StartElement) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	var token xml.Token = start
	depth := 0
	for {
		switch tok := token.(type) {
		case xml.StartElement:
			depth++
			tok.Attr = withoutNamespaceDecls(tok.Attr)
			if err := enc.EncodeToken(tok); err != nil {
				return nil, errors.Wrap(err, "unable to encode element")
			}
		case xml.EndElement:
			depth--
			if err := enc.EncodeToken(tok); err != nil {
				return nil, errors.Wrap(err, "unable to encode element")
			}
			if depth == 0 {
				if err := enc.Flush(); err != nil {
					return nil, errors.Wrap(err, "unable to encode element")
				}
				return buf.Bytes(), nil
			}
		case xml.CharData:
			if err := enc.EncodeToken(tok); err != nil {
				return nil, errors.Wrap(err, "unable to encode element")
			}
		}

		var err error
		token, err = er.decoder.Token()
		if err != nil {
			return nil, err
		}
	}
}

// limitedReader counts the bytes the decoder consumes and fails once the
// current limit is reached, so an oversized element is rejected while it
// is still arriving. It is an io.ByteReader, which keeps the decoder from
// buffering ahead of the stream.
type limitedReader struct {
	source interface {
		io.Reader
		io.ByteReader
	}
	consumed int64
	limit    int64 // 0 means unlimited
}

func newLimitedReader(r io.Reader) *limitedReader {
	source, ok := r.(interface {
		io.Reader
		io.ByteReader
	})
	if !ok {
		source = bufio.NewReader(r)
	}
	return &limitedReader{source: source}
}

func (lr *limitedReader) limitNext(size int64) {
	if size > 0 {
		lr.limit = lr.consumed + size
	} else {
		lr.limit = 0
	}
}

func (lr *limitedReader) ReadByte() (byte, error) {
	if lr.limit > 0 && lr.consumed >= lr.limit {
		return 0, ErrElementTooLarge
	}
	b, err := lr.source.ReadByte()
	if err == nil {
		lr.consumed++
	}
	return b, err
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	if lr.limit > 0 {
		remaining := lr.limit - lr.consumed
		if remaining <= 0 {
			return 0, ErrElementTooLarge
		}
		if int64(len(p)) > remaining {
			p = p[:remaining]
		}
	}
	n, err := lr.source.Read(p)
	lr.consumed += int64(n)
	return n, err
}

func withoutNamespaceDecls(attrs []xml.Attr) []xml.Attr {
	var out []xml.Attr
	for _, attr := range attrs {
		if attr.Name.Space == "xmlns" || (attr.Name.Space == "" && attr.Name.Local == "xmlns") {
			continue
		}
		out = append(out, attr)
	}
	return out
}
