package swap

import "context"

// Transport is the message-sending capability consumed by C7 (spec
// §6). Online transports return an explicit ack; the file transport's
// successful write counts as its own ack.
type Transport interface {
	Send(ctx context.Context, msg *Message) (ack bool, err error)
	WriteFile(msg *Message, path string) error
}

// MWCClient is the full-node RPC capability consumed by C6/C8 (spec §6).
type MWCClient interface {
	TipHeight(ctx context.Context) (uint64, error)
	PostTx(ctx context.Context, tx []byte, fluff bool) error
	GetKernel(ctx context.Context, excess []byte) (height uint64, found bool, err error)
}

// KeyRing scopes every signing operation to the minimum duration the
// key is held, per spec §5's "keychain-mask handle" requirement —
// callers never see a raw private key outside of fn.
type KeyRing interface {
	WithKey(ctx context.Context, keyLoc string, fn func(priv []byte) error) error
}
