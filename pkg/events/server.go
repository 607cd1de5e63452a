package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fioncat/csync/internal/logger"
	"github.com/fioncat/csync/internal/telemetry"
	"github.com/fioncat/csync/pkg/auth"
	"github.com/fioncat/csync/pkg/models"
	"github.com/fioncat/csync/pkg/secret"
)

// handshakeTimeout bounds how long a fresh connection may take to send
// its subscription frame.
const handshakeTimeout = 10 * time.Second

// ServerConfig holds the events listener configuration.
type ServerConfig struct {
	// Host is the address to bind to. Empty binds all interfaces.
	// Default: 0.0.0.0
	Host string `mapstructure:"host" yaml:"host" json:"host"`

	// Port is the TCP port to listen on.
	// Default: 7704
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port" json:"port"`

	// MaxConnections limits concurrent subscribers. 0 means unlimited.
	// Default: 128
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" json:"max_connections"`

	// ShutdownTimeout is how long Stop waits for connections to drain
	// before force-closing them.
	// Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout,omitempty" json:"shutdown_timeout,omitempty"`
}

// Credential is a user's stored password material. The channel key is
// derived from Hash alone; Salt is carried for handshake extensions
// and never feeds the derivation.
type Credential struct {
	Hash string
	Salt string
}

// CredentialResolver looks up a user's credential during the handshake.
// Unknown users resolve to models.ErrUserNotFound.
type CredentialResolver func(ctx context.Context, user string) (*Credential, error)

// established is the handshake reply frame. Salt is reserved and
// currently always empty; both peers derive the channel key from the
// password hash alone.
type established struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Salt    string `json:"salt,omitempty"`
}

// Server accepts TCP subscriptions and streams each user's events as
// encrypted frames.
//
// Per connection: read a framed user name, resolve the credential,
// reply with a framed JSON handshake, then switch the stream to
// AES-256-GCM and forward events from the bus until either side goes
// away. The key never crosses the wire; a client that cannot decrypt
// frames did not know the password hash.
type Server struct {
	config        *ServerConfig
	bus           *Bus
	resolve       CredentialResolver
	adminPassword string

	listener   net.Listener
	listenerMu sync.RWMutex

	// ListenerReady is closed when the listener accepts connections.
	// Tests use it to synchronize with startup.
	ListenerReady chan struct{}

	shutdown     chan struct{}
	shutdownOnce sync.Once
	shutdownCtx  context.Context
	cancelConns  context.CancelFunc

	activeConns sync.WaitGroup
	connCount   atomic.Int32
	conns       sync.Map
	semaphore   chan struct{}
}

// NewServer creates an events server in a stopped state. adminPassword
// is the configured admin credential; empty disables admin
// subscriptions. Call Start to begin serving.
func NewServer(config *ServerConfig, bus *Bus, resolve CredentialResolver, adminPassword string) *Server {
	var semaphore chan struct{}
	if config.MaxConnections > 0 {
		semaphore = make(chan struct{}, config.MaxConnections)
	}

	shutdownCtx, cancelConns := context.WithCancel(context.Background())

	return &Server{
		config:        config,
		bus:           bus,
		resolve:       resolve,
		adminPassword: adminPassword,
		ListenerReady: make(chan struct{}),
		shutdown:      make(chan struct{}),
		shutdownCtx:   shutdownCtx,
		cancelConns:   cancelConns,
		semaphore:     semaphore,
	}
}

// Start runs the accept loop and blocks until ctx is cancelled or the
// listener fails to bind.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("create events listener on %s: %w", addr, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.ListenerReady)

	logger.Info("events server listening", "port", s.config.Port)

	go func() {
		<-ctx.Done()
		s.initiateShutdown()
	}()

	for {
		if s.semaphore != nil {
			select {
			case s.semaphore <- struct{}{}:
			case <-s.shutdown:
				return s.drainConnections()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			if s.semaphore != nil {
				<-s.semaphore
			}
			select {
			case <-s.shutdown:
				return s.drainConnections()
			default:
				logger.Debug("error accepting events connection", "error", err)
				continue
			}
		}

		if tcp, ok := tcpConn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("failed to set TCP_NODELAY", "error", err)
			}
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)
		// Connections are tracked by id, not remote address: a client
		// reconnecting through the same NAT port must not evict the
		// tracking entry of its half-closed predecessor.
		connID := uuid.New().String()[:8]
		remote := tcpConn.RemoteAddr().String()
		s.conns.Store(connID, tcpConn)
		logger.Debug("events connection accepted", "conn", connID, "address", remote, "active", s.connCount.Load())

		go func(connID, remote string, tcpConn net.Conn) {
			defer func() {
				s.conns.Delete(connID)
				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.semaphore != nil {
					<-s.semaphore
				}
				logger.Debug("events connection closed", "conn", connID, "address", remote, "active", s.connCount.Load())
			}()

			if err := s.serveConn(s.shutdownCtx, connID, tcpConn); err != nil {
				logger.Warn("events connection failed", "conn", connID, "address", remote, "error", err)
			}
		}(connID, remote, tcpConn)
	}
}

// serveConn runs the handshake and then streams events until the
// subscriber goes away. Connection errors terminate only this
// connection.
func (s *Server) serveConn(ctx context.Context, connID string, tcpConn net.Conn) error {
	conn := NewConn(tcpConn)
	defer conn.Close()

	user, sub, err := s.establish(ctx, connID, conn)
	if err != nil {
		return err
	}
	defer sub.Close()

	logger.Info("event subscription established", "conn", connID, "user", user, "address", conn.RemoteAddr())

	// The client never sends after the handshake; a read completes only
	// when the peer closes or the shutdown deadline fires.
	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		for {
			if _, err := conn.ReadFrame(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := s.deliver(ctx, connID, user, conn, event); err != nil {
				return err
			}

		case <-peerGone:
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

// establish runs the handshake, attaches the channel cipher and
// registers the subscriber with the bus.
func (s *Server) establish(ctx context.Context, connID string, conn *Conn) (string, *Subscriber, error) {
	ctx, span := telemetry.StartEventSpan(ctx, telemetry.SpanSubscribe,
		telemetry.EventConnection(connID),
		telemetry.ClientAddr(conn.RemoteAddr().String()))
	defer span.End()

	user, cred, err := s.handshake(ctx, conn)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return "", nil, err
	}
	span.SetAttributes(telemetry.EventSubscriber(user))

	cipher, err := secret.NewCipher(secret.DeriveKey(cred.Hash, ""))
	if err != nil {
		err = fmt.Errorf("derive channel cipher: %w", err)
		telemetry.RecordError(ctx, err)
		return "", nil, err
	}
	conn.AttachCipher(cipher)

	sub, err := s.bus.Subscribe(user)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return "", nil, err
	}
	return user, sub, nil
}

// deliver encodes one event and writes it out as an encrypted frame.
func (s *Server) deliver(ctx context.Context, connID, user string, conn *Conn, event models.Event) error {
	ctx, span := telemetry.StartEventSpan(ctx, telemetry.SpanEventDeliver,
		telemetry.EventType(string(event.Type)),
		telemetry.EventItems(len(event.Items)),
		telemetry.EventSubscriber(user),
		telemetry.EventConnection(connID))
	defer span.End()

	payload, err := json.Marshal(event)
	if err != nil {
		err = fmt.Errorf("encode event: %w", err)
		telemetry.RecordError(ctx, err)
		return err
	}
	if err := conn.WriteFrame(payload); err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	return nil
}

// handshake reads the subscription frame and resolves the credential.
// The reply goes out as plaintext; on failure the caller closes the
// socket.
func (s *Server) handshake(ctx context.Context, conn *Conn) (string, *Credential, error) {
	if err := conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return "", nil, err
	}
	frame, err := conn.ReadFrame()
	if err != nil {
		return "", nil, fmt.Errorf("read subscription frame: %w", err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return "", nil, err
	}

	user := string(frame)
	cred, err := s.resolveCredential(ctx, conn, user)
	if err != nil {
		reject := established{OK: false, Message: err.Error()}
		payload, marshalErr := json.Marshal(reject)
		if marshalErr == nil {
			_ = conn.WriteFrame(payload)
		}
		return "", nil, fmt.Errorf("subscription for %q rejected: %w", user, err)
	}

	payload, err := json.Marshal(established{OK: true})
	if err != nil {
		return "", nil, err
	}
	if err := conn.WriteFrame(payload); err != nil {
		return "", nil, err
	}
	return user, cred, nil
}

func (s *Server) resolveCredential(ctx context.Context, conn *Conn, user string) (*Credential, error) {
	if user == "" {
		return nil, errors.New("user name is required")
	}

	if user == models.AdminUserName {
		if s.adminPassword == "" {
			return nil, errors.New("admin subscription is not available")
		}
		if !auth.IsLoopbackAddr(conn.RemoteAddr().String()) {
			return nil, errors.New("admin subscription is restricted to loopback")
		}
		// The admin has no stored row; the configured password itself is
		// the key material.
		return &Credential{Hash: s.adminPassword}, nil
	}

	cred, err := s.resolve(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, errors.New("unknown user")
		}
		logger.Error("resolve subscription credential", "user", user, "error", err)
		return nil, errors.New("internal error")
	}
	return cred, nil
}

// initiateShutdown stops the accept loop, unblocks pending reads and
// cancels in-flight connections. Safe to call multiple times.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("error closing events listener", "error", err)
			}
		}
		s.listenerMu.Unlock()

		deadline := time.Now().Add(100 * time.Millisecond)
		s.conns.Range(func(_, value any) bool {
			if conn, ok := value.(net.Conn); ok {
				_ = conn.SetReadDeadline(deadline)
			}
			return true
		})

		s.cancelConns()
	})
}

// drainConnections waits for active connections to finish, force
// closing whatever remains after the shutdown timeout.
func (s *Server) drainConnections() error {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	select {
	case <-done:
		logger.Info("events server shutdown complete")
		return nil
	case <-time.After(timeout):
		remaining := s.connCount.Load()
		s.conns.Range(func(_, value any) bool {
			if conn, ok := value.(net.Conn); ok {
				_ = conn.Close()
			}
			return true
		})
		return fmt.Errorf("events shutdown timeout: %d connections force-closed", remaining)
	}
}

// Stop initiates shutdown and waits for connections to drain or ctx to
// expire.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound listener address. It blocks until the
// listener is ready.
func (s *Server) Addr() string {
	<-s.ListenerReady

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
