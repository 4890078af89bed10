package reactor

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cppservergit/apiserver2/internal/apierr"
	"github.com/cppservergit/apiserver2/internal/catalog"
	"github.com/cppservergit/apiserver2/internal/cors"
	"github.com/cppservergit/apiserver2/internal/httpresp"
	"github.com/cppservergit/apiserver2/internal/metrics"
	"github.com/cppservergit/apiserver2/internal/queue"
	"github.com/cppservergit/apiserver2/internal/security"
	"github.com/cppservergit/apiserver2/internal/workerpool"
)

// responseItem is one completed response waiting to be written back to
// its connection, mirroring shared_queue<response_item, true>'s element.
type responseItem struct {
	fd   int
	resp *httpresp.Response
}

// Config bundles everything a Shard needs that is shared across every
// shard the supervisor constructs: the catalog, origin allow-list,
// security gate and metrics object are all read-only or internally
// thread-safe after startup (spec.md §5 "Shared resources").
type Config struct {
	Port           int
	MaxRequestSize int
	IdleTimeout    time.Duration
	NumWorkers     int
	QueueCapacity  int
	Catalog        *catalog.Catalog
	CORS           *cors.AllowList
	Gate           *security.Gate
	Metrics        *metrics.Metrics
	Log            *slog.Logger
	Running        *atomic.Bool
}

// Shard is one io_worker: a single-threaded event loop owning one
// listening socket (bound with SO_REUSEPORT so every shard shares the
// same port and the kernel load-balances accepts), one edge-triggered
// poller, one response-ready wakeup descriptor, one worker pool and
// response queue, and a connection table keyed by fd.
type Shard struct {
	id       int
	listenFD int
	poller   Poller
	wake     *wakeup
	conns    map[int]*connection

	pool      *workerpool.Pool
	respQueue *queue.Queue[responseItem]
	dispatch  *dispatcher
	metrics   *metrics.Metrics

	maxRequestSize int
	idleTimeout    time.Duration
	running        *atomic.Bool
	log            *slog.Logger

	lastSweep time.Time
}

// NewShard builds and binds one shard. Every shard calls this against the
// same port; SO_REUSEPORT lets them all succeed.
func NewShard(id int, cfg Config) (*Shard, error) {
	listenFD, err := listenReusePort(cfg.Port)
	if err != nil {
		return nil, err
	}
	poller, err := NewPoller()
	if err != nil {
		unix.Close(listenFD)
		return nil, err
	}
	if err := poller.AddRead(listenFD); err != nil {
		poller.Close()
		unix.Close(listenFD)
		return nil, err
	}
	wake, err := newWakeup()
	if err != nil {
		poller.Close()
		unix.Close(listenFD)
		return nil, err
	}
	if err := poller.AddRead(wake.FD()); err != nil {
		wake.Close()
		poller.Close()
		unix.Close(listenFD)
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	pool := workerpool.New(cfg.NumWorkers, cfg.QueueCapacity, log)
	cfg.Metrics.RegisterPool(pool)

	respQueue := queue.New[responseItem](cfg.QueueCapacity * 2)
	respQueue.SetWakeup(wake.Notify)

	s := &Shard{
		id:             id,
		listenFD:       listenFD,
		poller:         poller,
		wake:           wake,
		conns:          make(map[int]*connection),
		pool:           pool,
		respQueue:      respQueue,
		metrics:        cfg.Metrics,
		maxRequestSize: cfg.MaxRequestSize,
		idleTimeout:    cfg.IdleTimeout,
		running:        cfg.Running,
		log:            log,
		lastSweep:      time.Now(),
	}
	s.dispatch = &dispatcher{
		catalog: cfg.Catalog,
		cors:    cfg.CORS,
		gate:    cfg.Gate,
		pool:    pool,
		metrics: cfg.Metrics,
		log:     log,
	}
	return s, nil
}

// drainTimeout bounds the shutdown drain below: server.cpp's
// drain_pending_responses() loops unconditionally until pending work and
// the response queue both empty, but a bounded drain keeps a wedged
// handler from hanging process shutdown forever.
const drainTimeout = 30 * time.Second

// Run blocks servicing this shard's event loop until the shared running
// flag is cleared, then drains in-flight work before returning. ctx is
// the process's signal-derived context; Run does not consult it (it is
// already cancelled by the time the loop above exits). The drain is
// bounded by drainTimeout instead, and a second SIGINT/SIGTERM/SIGQUIT
// during drain reverts to Go's default signal disposition and kills the
// process outright, since the supervisor unregisters its signal
// notification once the first signal arrives.
func (s *Shard) Run(ctx context.Context) {
	for s.running.Load() {
		events, err := s.poller.Wait(1000)
		if err != nil {
			s.log.Error("poller wait failed", "shard", s.id, "error", err)
			continue
		}
		s.sweepIdle()
		for _, ev := range events {
			s.handleEvent(ev)
		}
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	s.drainAndClose(drainCtx)
}

func (s *Shard) handleEvent(ev Event) {
	switch ev.Fd {
	case s.listenFD:
		s.acceptLoop()
	case s.wake.FD():
		s.wake.Drain()
		s.drainResponses()
	default:
		conn, ok := s.conns[ev.Fd]
		if !ok {
			return
		}
		if ev.HangUp {
			s.closeConn(conn)
			return
		}
		if ev.Readable && conn.state == stateReading {
			s.readLoop(conn)
		}
		if ev.Writable && conn.state == stateWriting {
			s.writeLoop(conn)
		}
	}
}

// acceptLoop accepts until EAGAIN, per spec.md §4.I.
func (s *Shard) acceptLoop() {
	for {
		fd, sa, err := unix.Accept4(s.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
				s.log.Error("accept failed", "shard", s.id, "error", err)
			}
			return
		}
		remoteIP := sockaddrIP(sa)
		conn := acquireConnection(fd, remoteIP, s.maxRequestSize)
		if err := s.poller.AddRead(fd); err != nil {
			unix.Close(fd)
			continue
		}
		s.conns[fd] = conn
		s.metrics.IncrementConnections()
	}
}

// readLoop drains fd until EAGAIN or EOF, feeding bytes into the parser.
func (s *Shard) readLoop(conn *connection) {
	for {
		tail := conn.parser.WritableTail()
		n, err := unix.Read(conn.fd, tail)
		if n > 0 {
			conn.lastActivity = time.Now()
			if aerr := conn.parser.Advance(n); aerr != nil {
				s.rejectAndClose(conn, apierr.BadRequest("Request too large"))
				return
			}
		}
		if n == 0 {
			s.closeConn(conn)
			return
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			s.closeConn(conn)
			return
		}
		if conn.parser.EOF() {
			s.finalize(conn)
			return
		}
	}
}

func (s *Shard) rejectAndClose(conn *connection, apiErr *apierr.Error) {
	resp := httpresp.New("")
	writeAPIError(resp, apiErr)
	s.writeAndClose(conn, resp)
}

func (s *Shard) writeAndClose(conn *connection, resp *httpresp.Response) {
	for {
		buf := resp.Remaining()
		if len(buf) == 0 {
			break
		}
		n, err := unix.Write(conn.fd, buf)
		if n > 0 {
			resp.Advance(n)
		}
		if err != nil {
			break
		}
	}
	s.closeConn(conn)
}

// finalize runs Finalize and the dispatch pipeline, per spec.md §4.I's
// "Processing a finalized request" algorithm.
func (s *Shard) finalize(conn *connection) {
	req, err := conn.parser.Finalize()
	if err != nil {
		apiErr, ok := err.(*apierr.Error)
		if !ok {
			apiErr = apierr.Internal(err)
		}
		s.rejectAndClose(conn, apiErr)
		return
	}

	// Step 1: deregister interest; it is re-registered once a response
	// (synchronous or worker-delivered) is ready to write.
	_ = s.poller.Remove(conn.fd)
	conn.state = stateAwaitingResponse
	fd := conn.fd

	resp := s.dispatch.route(req, func(r *httpresp.Response) {
		s.respQueue.Push(responseItem{fd: fd, resp: r})
	})
	if resp != nil {
		s.sendResponse(conn, resp)
	}
}

func (s *Shard) sendResponse(conn *connection, resp *httpresp.Response) {
	conn.beginResponse(resp)
	if err := s.poller.AddRead(conn.fd); err != nil {
		s.log.Error("failed to re-arm connection for write", "fd", conn.fd, "error", err)
		s.closeConn(conn)
		return
	}
	if err := s.poller.EnableWrite(conn.fd); err != nil {
		s.closeConn(conn)
		return
	}
	s.writeLoop(conn)
}

func (s *Shard) writeLoop(conn *connection) {
	for {
		buf := conn.resp.Remaining()
		if len(buf) == 0 {
			break
		}
		n, err := unix.Write(conn.fd, buf)
		if n > 0 {
			conn.resp.Advance(n)
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			s.closeConn(conn)
			return
		}
	}
	_ = s.poller.DisableWrite(conn.fd)
	conn.resetForNextRequest()
	conn.lastActivity = time.Now()

	// A pipelined request may already be fully buffered from the same
	// read() that delivered the one just answered; edge-triggered mode
	// will not re-signal readability for bytes already drained from the
	// socket, so finalize it inline rather than waiting for a new event.
	if conn.parser.EOF() {
		s.finalize(conn)
	}
}

// drainResponses moves every ready response queue item to its connection,
// arming write-ready interest, per spec.md §4.I's response-event handler.
func (s *Shard) drainResponses() {
	items := s.respQueue.DrainTo(nil)
	for _, item := range items {
		conn, ok := s.conns[item.fd]
		if !ok {
			// Connection closed while the worker was processing; the
			// response is dropped per spec.md §5's cancellation model.
			continue
		}
		s.sendResponse(conn, item.resp)
	}
}

// sweepIdle closes connections idle longer than idleTimeout, once per
// second (Slowloris defense, spec.md §4.I).
func (s *Shard) sweepIdle() {
	now := time.Now()
	if now.Sub(s.lastSweep) < time.Second {
		return
	}
	s.lastSweep = now
	for _, conn := range s.conns {
		if now.Sub(conn.lastActivity) > s.idleTimeout {
			s.closeConn(conn)
		}
	}
}

func (s *Shard) closeConn(conn *connection) {
	delete(s.conns, conn.fd)
	_ = s.poller.Remove(conn.fd)
	_ = unix.Close(conn.fd)
	s.metrics.DecrementConnections()
	releaseConnection(conn)
}

// drainAndClose implements spec.md §4.I's shutdown drain: service writes
// and worker completions until both the worker pool and response queue
// are empty, then release every resource.
func (s *Shard) drainAndClose(ctx context.Context) {
	for s.pool.Pending() > 0 || s.respQueue.Len() > 0 {
		cancelled := false
		select {
		case <-ctx.Done():
			cancelled = true
		default:
		}
		if cancelled {
			break
		}
		events, err := s.poller.Wait(100)
		if err != nil {
			break
		}
		for _, ev := range events {
			if ev.Fd == s.wake.FD() {
				s.wake.Drain()
				s.drainResponses()
				continue
			}
			conn, ok := s.conns[ev.Fd]
			if ok && ev.Writable && conn.state == stateWriting {
				s.writeLoop(conn)
			}
		}
	}

	for _, conn := range s.conns {
		s.closeConn(conn)
	}
	s.pool.Close()
	_ = s.poller.Close()
	_ = s.wake.Close()
	_ = unix.Close(s.listenFD)
}

func listenReusePort(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	addr := unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func sockaddrIP(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(v.Addr[:]).String()
	case *unix.SockaddrInet6:
		return net.IP(v.Addr[:]).String()
	default:
		return ""
	}
}
