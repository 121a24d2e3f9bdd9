package xmppcore

// Fragment is a connection-scoped, unaddressed stream element: features,
// stream errors, STARTTLS and SASL negotiation elements. The set is closed;
// only types of this package implement it.
type Fragment interface {
	fragment()
}

var (
	_ Fragment = (*StreamFeatures)(nil)
	_ Fragment = (*StreamError)(nil)
	_ Fragment = (*TLSProceed)(nil)
	_ Fragment = (*TLSFailure)(nil)
	_ Fragment = (*SASLChallenge)(nil)
	_ Fragment = (*SASLResponse)(nil)
	_ Fragment = (*SASLSuccess)(nil)
	_ Fragment = (*SASLFailure)(nil)
)
