package reactor

import (
	"sync"
	"time"

	"github.com/cppservergit/apiserver2/internal/httpmsg"
	"github.com/cppservergit/apiserver2/internal/httpresp"
)

// connState tracks which half of the request/response cycle a connection
// is currently in, so the event loop knows whether a readable or writable
// notification is expected.
type connState int

const (
	stateReading connState = iota
	stateAwaitingResponse
	stateWriting
)

// connection is one accepted socket's full I/O state, keyed by fd in the
// shard's connection table, mirroring the teacher's per-connection
// context plus the source's per-connection parser/response pairing.
type connection struct {
	fd           int
	remoteIP     string
	parser       *httpmsg.Parser
	resp         *httpresp.Response
	state        connState
	lastActivity time.Time
}

// connPool recycles *connection structs across accept/close cycles,
// adapted from the teacher's core/pools/connection_pool.go — simplified
// from that file's generic ConnectionPoolable interface (one newFunc, one
// Reset method supplied by the caller) down to the single concrete type
// this package ever pools.
var connPool = sync.Pool{
	New: func() any { return &connection{} },
}

// acquireConnection takes a *connection from the pool (or allocates one)
// and gives it a parser. releaseConnection always drops the parser, so in
// practice every accept builds a new parser, whose starting buffer chunk
// comes from the buffer package's chunk pool.
func acquireConnection(fd int, remoteIP string, maxRequestSize int) *connection {
	c := connPool.Get().(*connection)
	c.fd = fd
	c.remoteIP = remoteIP
	c.state = stateReading
	c.lastActivity = time.Now()
	c.resp = nil
	if c.parser == nil {
		c.parser = httpmsg.NewParser(maxRequestSize, remoteIP)
	} else {
		c.parser.Reset(remoteIP)
	}
	return c
}

// releaseConnection returns c to the pool once its socket has been closed
// for good, after releasing its parser's buffer chunk back to the buffer
// package's pool.
func releaseConnection(c *connection) {
	c.parser.Release()
	c.parser = nil
	connPool.Put(c)
}

// beginResponse arms the connection with the response to write and
// transitions it out of the "awaiting a worker" state.
func (c *connection) beginResponse(resp *httpresp.Response) {
	c.resp = resp
	c.state = stateWriting
}

// resetForNextRequest prepares the parser for the next pipelined or
// keep-alive request on the same connection, preserving any bytes already
// read past the end of the request just finished.
func (c *connection) resetForNextRequest() {
	leftover := c.parser.Leftover()
	c.parser.Reset(c.remoteIP)
	if len(leftover) > 0 {
		tail := c.parser.WritableTail()
		n := copy(tail, leftover)
		_ = c.parser.Advance(n)
	}
	c.resp = nil
	c.state = stateReading
}
