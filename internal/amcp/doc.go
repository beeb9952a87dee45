// Package amcp implements the client side of CasparCG's AMCP line protocol.
//
// It owns three concerns:
//   - the command model: positions (channel or channel-layer addresses),
//     keyword commands with their fixed positional argument grammars, and
//     groups that batch several commands into one transmission;
//   - response framing: parsing the engine's status lines and data blocks
//     into Response values;
//   - transport: a TCP client that correlates responses to requests in FIFO
//     order, and a Connection supervisor that keeps the client dialed.
//
// MockServer is an in-process engine simulator used by tests across the
// repository. It speaks the same framing rules as the real server and tracks
// which producer occupies each layer so callers can assert on the remote
// state their commands produced.
package amcp
