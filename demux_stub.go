//go:build !linux

package iosched

// newDefaultReactor builds the reactor installed by UseReactor on first use.
// Platforms without a native demux implementation get the null reactor,
// which honours the blocking and interrupt contract but demultiplexes no
// I/O.
func newDefaultReactor() Service {
	return newNullReactor()
}
