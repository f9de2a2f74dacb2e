package radius

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	rad "layeh.com/radius"
	"layeh.com/radius/rfc2865"

	"github.com/traidnet/wificore/platform/go/faults"
)

const testSecret = "testing123"

// startServer runs handler behind a PacketServer on a loopback port.
func startServer(t *testing.T, handler rad.HandlerFunc) Config {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	server := rad.PacketServer{
		Handler:      handler,
		SecretSource: rad.StaticSecretSource([]byte(testSecret)),
	}
	go func() { _ = server.Serve(pc) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	return Config{
		Host:          "127.0.0.1",
		Port:          pc.LocalAddr().(*net.UDPAddr).Port,
		Secret:        testSecret,
		Timeout:       time.Second,
		NASIP:         "127.0.0.1",
		NASIdentifier: "wificore",
	}
}

func passwordHandler(seenNAS chan<- string) rad.HandlerFunc {
	return func(w rad.ResponseWriter, r *rad.Request) {
		if seenNAS != nil {
			seenNAS <- rfc2865.NASIdentifier_GetString(r.Packet)
		}
		if rfc2865.UserPassword_GetString(r.Packet) != "s3cret" {
			_ = w.Write(r.Response(rad.CodeAccessReject))
			return
		}
		resp := r.Response(rad.CodeAccessAccept)
		_ = rfc2865.SessionTimeout_Set(resp, rfc2865.SessionTimeout(3600))
		_ = rfc2865.ReplyMessage_SetString(resp, "welcome")
		vsa, err := MikrotikRateLimitAttribute("2M/5M")
		if err == nil {
			resp.Add(rfc2865.VendorSpecific_Type, vsa)
		}
		_ = w.Write(resp)
	}
}

func TestAuthenticateAccept(t *testing.T) {
	seen := make(chan string, 1)
	cfg := startServer(t, passwordHandler(seen))

	client, err := NewClient(cfg, nil, nil)
	require.NoError(t, err)

	resp, err := client.Authenticate(context.Background(), Request{Username: "alice", Password: "s3cret", NASIdentifier: "acme-hotspot"})
	require.NoError(t, err)
	require.Equal(t, "3600", resp.Attributes[AttrSessionTimeout])
	require.Equal(t, "welcome", resp.Attributes[AttrReplyMessage])
	require.Equal(t, "2M/5M", resp.Attributes[AttrMikrotikRateLimit])
	require.Equal(t, "acme-hotspot", <-seen)
}

func TestAuthenticateReject(t *testing.T) {
	cfg := startServer(t, passwordHandler(nil))

	client, err := NewClient(cfg, nil, nil)
	require.NoError(t, err)

	_, err = client.Authenticate(context.Background(), Request{Username: "alice", Password: "wrong"})
	require.ErrorIs(t, err, faults.ErrInvalidCredentials)
	require.False(t, faults.Retryable(err))
}

func TestAuthenticateTimeoutIsUnavailable(t *testing.T) {
	// A socket that never answers.
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	client, err := NewClient(Config{
		Host:    "127.0.0.1",
		Port:    pc.LocalAddr().(*net.UDPAddr).Port,
		Secret:  testSecret,
		Timeout: 200 * time.Millisecond,
	}, nil, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Authenticate(context.Background(), Request{Username: "alice", Password: "s3cret"})
	require.ErrorIs(t, err, faults.ErrAuthServerUnavailable)
	require.True(t, faults.Retryable(err))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestAuthenticateCallerCancellation(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	client, err := NewClient(Config{
		Host:   "127.0.0.1",
		Port:   pc.LocalAddr().(*net.UDPAddr).Port,
		Secret: testSecret,
	}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Authenticate(ctx, Request{Username: "alice", Password: "s3cret"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(Config{Secret: testSecret}, nil, nil)
	require.Error(t, err)

	_, err = NewClient(Config{Host: "radius"}, nil, nil)
	require.Error(t, err)

	_, err = NewClient(Config{Host: "radius", Secret: testSecret, NASIP: "not-an-ip"}, nil, nil)
	require.Error(t, err)

	c, err := NewClient(Config{Host: "radius", Secret: testSecret, Timeout: time.Minute}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, MaxTimeout, c.timeout)
	require.Equal(t, "radius:1812", c.addr)
}

func TestMikrotikRateLimitAttributeLength(t *testing.T) {
	longest := strings.Repeat("9", maxVendorSubValue)

	vsa, err := MikrotikRateLimitAttribute(longest)
	require.NoError(t, err)

	p := rad.New(rad.CodeAccessAccept, []byte(testSecret))
	p.Add(rfc2865.VendorSpecific_Type, vsa)
	got, ok := mikrotikRateLimit(p)
	require.True(t, ok)
	require.Equal(t, longest, got)

	_, err = MikrotikRateLimitAttribute(longest + "9")
	require.Error(t, err)
	_, err = MikrotikRateLimitAttribute(strings.Repeat("9", 300))
	require.Error(t, err)
}
