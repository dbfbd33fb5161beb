// Package bus carries Modbus TCP traffic between field controllers and the
// device registry.
//
// A Mux owns two kinds of connection:
//
//   - Link: an outbound TCP connection to a bus master, redialled with
//     exponential backoff when it drops.
//   - Listener: a TCP slave endpoint accepting any number of clients.
//
// Every connection runs in its own goroutine. Each complete MBAP frame is
// answered by the Handler (normally the device registry) and the response
// is written back on the same connection.
//
// # Abuse handling
//
// A frame whose MBAP header is implausible (protocol id other than 0, or a
// length outside 3..254) counts as a buffer overflow: buffered bytes are
// discarded and reading continues. Each Listener has a Guard that counts
// overflows per peer host. A host over its limit is banned: the connection
// is destroyed and further connections from it are refused until the ban
// duration elapses.
package bus
