package miio

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeDevice answers miio packets on a loopback UDP socket.
type fakeDevice struct {
	conn  *net.UDPConn
	suite cipherSuite

	deviceID uint32
	stamp    uint32

	mu       sync.Mutex
	handler  func(method string, params json.RawMessage) (any, *DeviceError)
	requests []string

	// dropFirst silently ignores this many data requests.
	dropFirst atomic.Int32
	hellos    atomic.Int32
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}

	d := &fakeDevice{
		conn:     conn,
		suite:    newCipherSuite(testToken(t)),
		deviceID: 0x0A0B0C0D,
		stamp:    1000,
		handler: func(string, json.RawMessage) (any, *DeviceError) {
			return []any{"ok"}, nil
		},
	}
	go d.serve()
	t.Cleanup(func() { conn.Close() })
	return d
}

func (d *fakeDevice) addr() string {
	return d.conn.LocalAddr().String()
}

func (d *fakeDevice) setHandler(h func(method string, params json.RawMessage) (any, *DeviceError)) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

func (d *fakeDevice) methods() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.requests...)
}

func (d *fakeDevice) serve() {
	buf := make([]byte, 4096)
	for {
		n, peer, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		data := append([]byte(nil), buf[:n]...)

		h, payload, err := decodePacket(data)
		if err != nil {
			continue
		}
		if h.Unknown == helloUnknown {
			d.hellos.Add(1)
			d.reply(peer, d.helloReply())
			continue
		}
		if !verifyChecksum(data, d.suite.token) {
			continue
		}
		if d.dropFirst.Load() > 0 {
			d.dropFirst.Add(-1)
			continue
		}

		plain, err := d.suite.decrypt(payload)
		if err != nil {
			continue
		}
		var req struct {
			ID     int             `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(plain, &req); err != nil {
			continue
		}

		d.mu.Lock()
		d.requests = append(d.requests, req.Method)
		handler := d.handler
		d.mu.Unlock()

		result, devErr := handler(req.Method, req.Params)
		resp := map[string]any{"id": req.ID}
		if devErr != nil {
			resp["error"] = devErr
		} else {
			resp["result"] = result
		}
		body, _ := json.Marshal(resp)
		body = append(body, 0x00) // some firmware null-terminates replies

		ciphertext, _ := d.suite.encrypt(body)
		packet, _ := encodePacket(d.deviceID, d.stamp, d.suite.token, ciphertext)
		d.reply(peer, packet)
	}
}

func (d *fakeDevice) helloReply() []byte {
	buf := make([]byte, headerSize)
	Header{Length: headerSize, DeviceID: d.deviceID, Stamp: d.stamp}.put(buf)
	copy(buf[16:32], d.suite.token)
	return buf
}

func (d *fakeDevice) reply(peer *net.UDPAddr, data []byte) {
	_, _ = d.conn.WriteToUDP(data, peer) //nolint:errcheck // test device
}

func dialFake(t *testing.T, d *fakeDevice, timeout time.Duration) *Client {
	t.Helper()
	c, err := Dial(context.Background(), Config{
		Host:    d.addr(),
		Token:   testTokenHex,
		Timeout: timeout,
		Retries: 2,
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDial_Validation(t *testing.T) {
	if _, err := Dial(context.Background(), Config{Host: "127.0.0.1", Token: "bad"}); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Dial() with bad token error = %v, want ErrInvalidToken", err)
	}

	c, err := Dial(context.Background(), Config{Host: "127.0.0.1", Token: testTokenHex})
	if err != nil {
		t.Fatalf("Dial() without port error = %v", err)
	}
	defer c.Close()
	if got := c.conn.RemoteAddr().(*net.UDPAddr).Port; got != DefaultPort {
		t.Errorf("default port = %d, want %d", got, DefaultPort)
	}
}

func TestClient_Handshake(t *testing.T) {
	d := newFakeDevice(t)
	c := dialFake(t, d, time.Second)

	if err := c.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}
	if c.deviceID != d.deviceID || c.stamp != d.stamp {
		t.Errorf("session = id %x stamp %d, want id %x stamp %d", c.deviceID, c.stamp, d.deviceID, d.stamp)
	}
}

func TestClient_Send(t *testing.T) {
	d := newFakeDevice(t)
	var gotParams json.RawMessage
	d.setHandler(func(method string, params json.RawMessage) (any, *DeviceError) {
		gotParams = params
		return []any{"ok"}, nil
	})
	c := dialFake(t, d, time.Second)

	result, err := c.Send(context.Background(), "set_wind", []int{1, 3})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(result) != 1 || result[0] != "ok" {
		t.Errorf("Send() = %v, want [ok]", result)
	}
	if string(gotParams) != "[1,3]" {
		t.Errorf("device saw params %s, want [1,3]", gotParams)
	}

	if _, err := c.Send(context.Background(), "set_clean", nil); err != nil {
		t.Fatalf("Send(nil params) error = %v", err)
	}
	if string(gotParams) != "[]" {
		t.Errorf("nil params sent as %s, want []", gotParams)
	}

	if d.hellos.Load() != 1 {
		t.Errorf("hellos = %d, want a single handshake for the session", d.hellos.Load())
	}
	stats := c.Stats()
	if stats.RequestsTx != 2 || stats.RepliesRx != 2 || stats.Handshakes != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestClient_GetPropertiesChunks(t *testing.T) {
	d := newFakeDevice(t)
	d.setHandler(func(method string, params json.RawMessage) (any, *DeviceError) {
		var names []string
		_ = json.Unmarshal(params, &names)
		out := make([]any, len(names))
		for i, n := range names {
			switch n {
			case "pm":
				out[i] = 42
			case "clean":
				out[i] = nil
			default:
				out[i] = n + "-value"
			}
		}
		return out, nil
	})
	c := dialFake(t, d, time.Second)

	names := []string{"power", "mode", "speed", "lock", "pm", "clean"}
	values, err := c.GetProperties(context.Background(), names, 4)
	if err != nil {
		t.Fatalf("GetProperties() error = %v", err)
	}
	if len(values) != len(names) {
		t.Fatalf("len(values) = %d, want %d", len(values), len(names))
	}
	if values[0] != "power-value" || values[4] != float64(42) || values[5] != nil {
		t.Errorf("values = %v", values)
	}
	if got := d.methods(); len(got) != 2 {
		t.Errorf("requests = %v, want 2 chunks", got)
	}
}

func TestClient_GetPropertiesLengthMismatch(t *testing.T) {
	d := newFakeDevice(t)
	d.setHandler(func(string, json.RawMessage) (any, *DeviceError) {
		return []any{"on"}, nil
	})
	c := dialFake(t, d, time.Second)

	_, err := c.GetProperties(context.Background(), []string{"power", "mode"}, 2)
	var re *ReplyError
	if !errors.As(err, &re) || !re.ProtocolError() {
		t.Errorf("GetProperties() error = %v, want ReplyError", err)
	}
}

func TestClient_Info(t *testing.T) {
	d := newFakeDevice(t)
	d.setHandler(func(method string, _ json.RawMessage) (any, *DeviceError) {
		if method != "miIO.info" {
			return nil, &DeviceError{Code: -1, Message: "unexpected"}
		}
		return map[string]any{
			"model":  "airdog.airpurifier.x5",
			"fw_ver": "1.4.9",
			"hw_ver": "esp32",
			"mac":    "AA:BB:CC:DD:EE:FF",
		}, nil
	})
	c := dialFake(t, d, time.Second)

	info, err := c.Info(context.Background())
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.Model != "airdog.airpurifier.x5" || info.FirmwareVersion != "1.4.9" {
		t.Errorf("Info() = %+v", info)
	}
	if info.UniqueID() != "airdog.airpurifier.x5-AA:BB:CC:DD:EE:FF" {
		t.Errorf("UniqueID() = %q", info.UniqueID())
	}
}

func TestClient_DeviceError(t *testing.T) {
	d := newFakeDevice(t)
	d.setHandler(func(string, json.RawMessage) (any, *DeviceError) {
		return nil, &DeviceError{Code: -5001, Message: "invalid arg"}
	})
	c := dialFake(t, d, time.Second)

	_, err := c.Send(context.Background(), "set_wind", []int{9, 9})
	var devErr *DeviceError
	if !errors.As(err, &devErr) || devErr.Code != -5001 {
		t.Fatalf("Send() error = %v, want DeviceError -5001", err)
	}
	if !devErr.ProtocolError() {
		t.Error("DeviceError should be a protocol error")
	}
	if len(d.methods()) != 1 {
		t.Errorf("device errors must not be retried, saw %d requests", len(d.methods()))
	}
}

func TestClient_RetriesAfterTimeout(t *testing.T) {
	d := newFakeDevice(t)
	d.dropFirst.Store(1)
	c := dialFake(t, d, 150*time.Millisecond)

	result, err := c.Send(context.Background(), "set_power", []int{1})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(result) != 1 || result[0] != "ok" {
		t.Errorf("Send() = %v", result)
	}
	if d.hellos.Load() != 2 {
		t.Errorf("hellos = %d, want a re-handshake after the timeout", d.hellos.Load())
	}
	if c.Stats().Timeouts != 1 {
		t.Errorf("Timeouts = %d, want 1", c.Stats().Timeouts)
	}
}

func TestClient_GivesUpAfterRetries(t *testing.T) {
	d := newFakeDevice(t)
	d.dropFirst.Store(100)
	c := dialFake(t, d, 50*time.Millisecond)

	_, err := c.Send(context.Background(), "set_power", []int{1})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Send() error = %v, want ErrTimeout", err)
	}
}

func TestClient_ContextCancel(t *testing.T) {
	d := newFakeDevice(t)
	d.dropFirst.Store(100)
	c := dialFake(t, d, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := c.Send(ctx, "set_power", []int{0})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Send() ignored cancellation")
	}
}

func TestClient_UnreachableDevice(t *testing.T) {
	// Bind and close a socket to get a port nobody listens on.
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	addr := conn.LocalAddr().String()
	conn.Close()

	c, err := Dial(context.Background(), Config{Host: addr, Token: testTokenHex, Timeout: 50 * time.Millisecond, Retries: -1})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Send(context.Background(), "set_power", []int{1}); err == nil {
		t.Error("Send() to a closed port should fail")
	}
}

func TestClient_Closed(t *testing.T) {
	d := newFakeDevice(t)
	c := dialFake(t, d, time.Second)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := c.Send(context.Background(), "set_power", []int{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
}

func TestClient_RequestIDWraps(t *testing.T) {
	c := &Client{nextID: maxRequestID}
	if id := c.nextRequestID(); id != maxRequestID {
		t.Errorf("id = %d, want %d", id, maxRequestID)
	}
	if id := c.nextRequestID(); id != 1 {
		t.Errorf("id after wrap = %d, want 1", id)
	}
}

func TestDecodeResultArray(t *testing.T) {
	got, err := decodeResultArray(json.RawMessage(`"ok"`))
	if err != nil || len(got) != 1 || got[0] != "ok" {
		t.Errorf("bare scalar = %v, %v", got, err)
	}
	if _, err := decodeResultArray(json.RawMessage(`{bad`)); err == nil {
		t.Error("invalid JSON should fail")
	}
}
