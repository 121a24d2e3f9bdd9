package xmppclient

import (
	"context"
	"encoding/xml"
)

// Element is one top-level element read from the stream, already split
// out by the transport.
type Element struct {
	Name xml.Name
	Attr []xml.Attr
	// Raw is the complete element. It is empty for the stream open and
	// close markers.
	Raw []byte

	OpensStream  bool
	ClosesStream bool
}

// ElementName returns the name in the form used by the *ElementName
// constants of the wire packages.
func (e Element) ElementName() string {
	return e.Name.Space + " " + e.Name.Local
}

// AttrValue returns the value of the first attribute with the given local
// name.
func (e Element) AttrValue(local string) string {
	for _, attr := range e.Attr {
		if attr.Name.Local == local {
			return attr.Value
		}
	}
	return ""
}

// Transport carries the XML stream. The implementation writes the stream
// header on Open and again after UpgradeToTLS and ResetStream. The
// Elements channel is closed when the connection is lost.
type Transport interface {
	Open(ctx context.Context, cfg *Config) error
	Send(ctx context.Context, data []byte) error
	UpgradeToTLS(ctx context.Context) error
	ResetStream(ctx context.Context) error
	Close() error
	Elements() <-chan Element
}
