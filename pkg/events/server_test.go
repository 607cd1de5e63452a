package events

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/fioncat/csync/pkg/models"
	"github.com/fioncat/csync/pkg/secret"
)

// startTestServer runs an events server on a random loopback port,
// backed by a map of credentials. It is stopped when the test ends.
func startTestServer(t *testing.T, adminPassword string, users map[string]*Credential) (*Server, *Bus) {
	t.Helper()

	bus := NewBus()
	resolve := func(_ context.Context, user string) (*Credential, error) {
		cred, ok := users[user]
		if !ok {
			return nil, models.ErrUserNotFound
		}
		return cred, nil
	}

	srv := NewServer(&ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		ShutdownTimeout: time.Second,
	}, bus, resolve, adminPassword)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	select {
	case <-srv.ListenerReady:
	case err := <-done:
		t.Fatalf("server exited during startup: %v", err)
	}

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("events server did not shut down")
		}
		bus.Close()
	})

	return srv, bus
}

// dialSubscribe connects to the server and runs the plaintext half of
// the handshake.
func dialSubscribe(t *testing.T, srv *Server, user string) (*Conn, established) {
	t.Helper()

	tcpConn, err := net.DialTimeout("tcp", srv.Addr(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial events server: %v", err)
	}
	t.Cleanup(func() { _ = tcpConn.Close() })

	conn := NewConn(tcpConn)
	if err := conn.WriteFrame([]byte(user)); err != nil {
		t.Fatalf("send subscription frame: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	frame, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("read handshake reply: %v", err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		t.Fatalf("clear deadline: %v", err)
	}

	var reply established
	if err := json.Unmarshal(frame, &reply); err != nil {
		t.Fatalf("decode handshake reply %q: %v", frame, err)
	}
	return conn, reply
}

// clientCipher builds the subscriber-side cipher from the same key
// material the server uses.
func clientCipher(t *testing.T, keyMaterial string) *secret.Cipher {
	t.Helper()

	cipher, err := secret.NewCipher(secret.DeriveKey(keyMaterial, ""))
	if err != nil {
		t.Fatalf("client cipher: %v", err)
	}
	return cipher
}

// waitForSubscribers blocks until the bus reports the wanted
// subscriber count. Registration happens after the handshake reply, so
// tests synchronize here before publishing.
func waitForSubscribers(t *testing.T, bus *Bus, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if bus.Subscribers() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("subscriber count never reached %d", want)
}

func readEvent(t *testing.T, conn *Conn) models.Event {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	frame, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("read event frame: %v", err)
	}

	var event models.Event
	if err := json.Unmarshal(frame, &event); err != nil {
		t.Fatalf("decode event %q: %v", frame, err)
	}
	return event
}

func TestServerStreamsEncryptedEvents(t *testing.T) {
	hash := secret.PasswordHash("pw-alice", "somesalt")
	srv, bus := startTestServer(t, "", map[string]*Credential{
		"alice": {Hash: hash, Salt: "somesalt"},
	})

	conn, reply := dialSubscribe(t, srv, "alice")
	if !reply.OK {
		t.Fatalf("handshake rejected: %s", reply.Message)
	}
	if reply.Salt != "" {
		t.Errorf("handshake salt = %q, want empty", reply.Salt)
	}
	conn.AttachCipher(clientCipher(t, hash))

	waitForSubscribers(t, bus, 1)
	bus.Publish(models.Event{
		Type: models.EventPut,
		Items: []models.Metadata{{
			ID:       42,
			BlobType: models.BlobTypeText,
			Owner:    "alice",
			Summary:  "hello",
		}},
	})

	event := readEvent(t, conn)
	if event.Type != models.EventPut {
		t.Errorf("event type = %q, want %q", event.Type, models.EventPut)
	}
	if len(event.Items) != 1 {
		t.Fatalf("items = %+v, want one item", event.Items)
	}
	item := event.Items[0]
	if item.ID != 42 || item.Owner != "alice" || item.Summary != "hello" {
		t.Errorf("item = %+v, want id 42 owned by alice", item)
	}
}

func TestServerDeliversOnlyOwnEvents(t *testing.T) {
	aliceHash := secret.PasswordHash("pw-alice", "sa")
	bobHash := secret.PasswordHash("pw-bob", "sb")
	srv, bus := startTestServer(t, "", map[string]*Credential{
		"alice": {Hash: aliceHash, Salt: "sa"},
		"bob":   {Hash: bobHash, Salt: "sb"},
	})

	aliceConn, aliceReply := dialSubscribe(t, srv, "alice")
	if !aliceReply.OK {
		t.Fatalf("alice handshake rejected: %s", aliceReply.Message)
	}
	aliceConn.AttachCipher(clientCipher(t, aliceHash))

	bobConn, bobReply := dialSubscribe(t, srv, "bob")
	if !bobReply.OK {
		t.Fatalf("bob handshake rejected: %s", bobReply.Message)
	}
	bobConn.AttachCipher(clientCipher(t, bobHash))

	waitForSubscribers(t, bus, 2)
	bus.Publish(models.Event{
		Type: models.EventDelete,
		Items: []models.Metadata{
			{ID: 1, Owner: "alice"},
			{ID: 2, Owner: "bob"},
		},
	})

	aliceEvent := readEvent(t, aliceConn)
	if len(aliceEvent.Items) != 1 || aliceEvent.Items[0].ID != 1 {
		t.Errorf("alice items = %+v, want id [1]", aliceEvent.Items)
	}

	bobEvent := readEvent(t, bobConn)
	if len(bobEvent.Items) != 1 || bobEvent.Items[0].ID != 2 {
		t.Errorf("bob items = %+v, want id [2]", bobEvent.Items)
	}
}

func TestServerRejectsUnknownUser(t *testing.T) {
	srv, _ := startTestServer(t, "", nil)

	conn, reply := dialSubscribe(t, srv, "mallory")
	if reply.OK {
		t.Fatal("handshake accepted for unknown user")
	}
	if reply.Message != "unknown user" {
		t.Errorf("message = %q, want %q", reply.Message, "unknown user")
	}

	// The socket is closed after a rejection.
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	if _, err := conn.ReadFrame(); err == nil {
		t.Fatal("expected closed connection after rejection")
	}
}

func TestServerRejectsEmptyUser(t *testing.T) {
	srv, _ := startTestServer(t, "", nil)

	_, reply := dialSubscribe(t, srv, "")
	if reply.OK {
		t.Fatal("handshake accepted for empty user name")
	}
}

func TestServerAdminSubscription(t *testing.T) {
	srv, bus := startTestServer(t, "s3cret", nil)

	conn, reply := dialSubscribe(t, srv, models.AdminUserName)
	if !reply.OK {
		t.Fatalf("admin handshake rejected: %s", reply.Message)
	}

	// The admin key material is the configured password itself.
	conn.AttachCipher(clientCipher(t, "s3cret"))

	waitForSubscribers(t, bus, 1)
	bus.Publish(models.Event{
		Type:  models.EventUpdate,
		Items: []models.Metadata{{ID: 9, Owner: models.AdminUserName}},
	})

	event := readEvent(t, conn)
	if event.Type != models.EventUpdate || len(event.Items) != 1 || event.Items[0].ID != 9 {
		t.Errorf("event = %+v, want update with id 9", event)
	}
}

func TestServerAdminDisabledWithoutPassword(t *testing.T) {
	srv, _ := startTestServer(t, "", nil)

	_, reply := dialSubscribe(t, srv, models.AdminUserName)
	if reply.OK {
		t.Fatal("admin handshake accepted without a configured password")
	}
}

func TestServerStopDisconnectsSubscribers(t *testing.T) {
	hash := secret.PasswordHash("pw", "s")
	srv, _ := startTestServer(t, "", map[string]*Credential{
		"alice": {Hash: hash, Salt: "s"},
	})

	conn, reply := dialSubscribe(t, srv, "alice")
	if !reply.OK {
		t.Fatalf("handshake rejected: %s", reply.Message)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	if _, err := conn.ReadFrame(); err == nil {
		t.Fatal("expected connection to close on shutdown")
	}
}
