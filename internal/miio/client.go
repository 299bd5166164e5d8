package miio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPort is the UDP port every miio device listens on.
const DefaultPort = 54321

const (
	defaultTimeout = 5 * time.Second
	defaultRetries = 3

	// maxRequestID wraps request ids back to 1, as the device firmware expects.
	maxRequestID = 9999

	// duplicateIDSkip moves past ids the device reports as already used.
	duplicateIDSkip = 100

	readBufferSize = 4096
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config holds the connection settings for one device.
type Config struct {
	// Host is "ip" or "ip:port". The port defaults to 54321.
	Host string

	// Token is the 32 character hex device token.
	Token string

	// Timeout bounds one request/reply round trip. Default: 5 seconds.
	Timeout time.Duration

	// Retries is the number of resends after a timeout. Default: 3.
	Retries int

	Logger Logger
}

// DeviceInfo is the reply to miIO.info.
type DeviceInfo struct {
	Model           string `json:"model"`
	FirmwareVersion string `json:"fw_ver"`
	HardwareVersion string `json:"hw_ver"`
	MAC             string `json:"mac"`
}

// UniqueID returns "{model}-{mac}".
func (i DeviceInfo) UniqueID() string {
	return i.Model + "-" + i.MAC
}

// Stats holds operational counters.
type Stats struct {
	RequestsTx   uint64
	RepliesRx    uint64
	Timeouts     uint64
	ErrorsTotal  uint64
	Handshakes   uint64
	LastActivity time.Time
}

// Client talks to one device over UDP. Round trips are serialised: the
// device answers one request at a time.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	cfg   Config
	suite cipherSuite
	conn  *net.UDPConn

	// mu guards the session fields and serialises round trips.
	mu         sync.Mutex
	handshaken bool
	deviceID   uint32
	stamp      uint32
	stampAt    time.Time
	nextID     int

	requestsTx   atomic.Uint64
	repliesRx    atomic.Uint64
	timeouts     atomic.Uint64
	errorsTotal  atomic.Uint64
	handshakes   atomic.Uint64
	lastActivity atomic.Int64

	closed atomic.Bool
}

type request struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type response struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *DeviceError    `json:"error"`
}

// Dial opens a UDP socket to the device. No packet is sent until the
// first request, which performs the handshake.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	} else if cfg.Retries == 0 {
		cfg.Retries = defaultRetries
	}

	token, err := ParseToken(cfg.Token)
	if err != nil {
		return nil, err
	}

	address := cfg.Host
	if _, _, splitErr := net.SplitHostPort(address); splitErr != nil {
		address = net.JoinHostPort(address, strconv.Itoa(DefaultPort))
	}

	var resolver net.Resolver
	ips, err := resolver.LookupNetIP(ctx, "ip4", hostOf(address))
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", cfg.Host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("resolving %s: no IPv4 address", cfg.Host)
	}
	port, err := strconv.Atoi(portOf(address))
	if err != nil {
		return nil, fmt.Errorf("parsing port of %s: %w", cfg.Host, err)
	}

	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: ips[0].AsSlice(), Port: port})
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", address, err)
	}

	return &Client{
		cfg:    cfg,
		suite:  newCipherSuite(token),
		conn:   conn,
		nextID: 1,
	}, nil
}

func hostOf(address string) string {
	h, _, _ := net.SplitHostPort(address) //nolint:errcheck // validated by caller
	return h
}

func portOf(address string) string {
	_, p, _ := net.SplitHostPort(address) //nolint:errcheck // validated by caller
	return p
}

// Send issues a command with integer parameters and returns its result array.
func (c *Client) Send(ctx context.Context, method string, params []int) ([]any, error) {
	if params == nil {
		params = []int{}
	}
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return decodeResultArray(raw)
}

// GetProperties reads properties with get_prop, at most maxProperties per
// request. The returned slice has one value per name.
func (c *Client) GetProperties(ctx context.Context, names []string, maxProperties int) ([]any, error) {
	if maxProperties <= 0 {
		maxProperties = len(names)
	}

	values := make([]any, 0, len(names))
	for start := 0; start < len(names); start += maxProperties {
		end := min(start+maxProperties, len(names))
		chunk := names[start:end]

		raw, err := c.Call(ctx, "get_prop", chunk)
		if err != nil {
			return nil, err
		}
		got, err := decodeResultArray(raw)
		if err != nil {
			return nil, err
		}
		if len(got) != len(chunk) {
			return nil, &ReplyError{Err: fmt.Errorf("get_prop returned %d values for %d names", len(got), len(chunk))}
		}
		values = append(values, got...)
	}
	return values, nil
}

// Info reads the device model, firmware and MAC address.
func (c *Client) Info(ctx context.Context) (DeviceInfo, error) {
	raw, err := c.Call(ctx, "miIO.info", []any{})
	if err != nil {
		return DeviceInfo{}, err
	}
	var info DeviceInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return DeviceInfo{}, &ReplyError{Err: fmt.Errorf("decoding miIO.info: %w", err)}
	}
	return info, nil
}

// Call performs one JSON-RPC exchange and returns the raw result.
// Timeouts are retried with a fresh handshake up to cfg.Retries times.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, ErrClosed
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !c.handshaken {
			if err := c.handshakeLocked(ctx); err != nil {
				lastErr = err
				if errors.Is(err, ErrTimeout) {
					continue
				}
				return nil, err
			}
		}

		result, err := c.roundTripLocked(ctx, method, params)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var devErr *DeviceError
		switch {
		case errors.As(err, &devErr) && devErr.Code == codeDuplicateID:
			c.nextID += duplicateIDSkip
		case errors.Is(err, ErrTimeout):
			c.handshaken = false
		default:
			return nil, err
		}

		c.logDebug("retrying miio request", "method", method, "attempt", attempt+1, "error", err)
	}

	return nil, lastErr
}

// Handshake exchanges hello packets to learn the device id and clock.
func (c *Client) Handshake(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}
	return c.handshakeLocked(ctx)
}

func (c *Client) handshakeLocked(ctx context.Context) error {
	c.handshakes.Add(1)
	if _, err := c.conn.Write(helloPacket()); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("writing hello: %w", err)
	}

	for {
		data, err := c.readLocked(ctx)
		if err != nil {
			return err
		}
		h, _, err := decodePacket(data)
		if err != nil {
			c.logDebug("ignoring malformed packet during handshake", "error", err)
			continue
		}
		if h.Length != headerSize {
			continue
		}
		c.deviceID = h.DeviceID
		c.stamp = h.Stamp
		c.stampAt = time.Now()
		c.handshaken = true
		c.logDebug("miio handshake complete", "device_id", h.DeviceID, "stamp", h.Stamp)
		return nil
	}
}

func (c *Client) roundTripLocked(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextRequestID()
	plain, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}
	ciphertext, err := c.suite.encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("encrypting %s: %w", method, err)
	}

	elapsed := uint32(time.Since(c.stampAt) / time.Second) //nolint:gosec // session is short lived
	packet, err := encodePacket(c.deviceID, c.stamp+elapsed+1, c.suite.token, ciphertext)
	if err != nil {
		return nil, err
	}

	if _, err := c.conn.Write(packet); err != nil {
		c.errorsTotal.Add(1)
		return nil, fmt.Errorf("writing %s: %w", method, err)
	}
	c.requestsTx.Add(1)

	for {
		data, err := c.readLocked(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := c.decodeReply(data)
		if err != nil {
			c.errorsTotal.Add(1)
			return nil, err
		}
		if resp == nil || resp.ID != id {
			// Late reply to an earlier attempt.
			continue
		}

		c.repliesRx.Add(1)
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// decodeReply returns nil, nil for packets that are not replies (hello echoes).
func (c *Client) decodeReply(data []byte) (*response, error) {
	h, payload, err := decodePacket(data)
	if err != nil {
		return nil, &ReplyError{Err: err}
	}
	if len(payload) == 0 {
		return nil, nil
	}
	if !verifyChecksum(data, c.suite.token) {
		return nil, &ReplyError{Err: ErrChecksum}
	}

	plain, err := c.suite.decrypt(payload)
	if err != nil {
		return nil, &ReplyError{Err: fmt.Errorf("decrypting: %w", err)}
	}
	plain = bytes.TrimRight(plain, "\x00")

	var resp response
	if err := json.Unmarshal(plain, &resp); err != nil {
		return nil, &ReplyError{Err: fmt.Errorf("decoding json: %w", err)}
	}

	c.stamp = h.Stamp
	c.stampAt = time.Now()
	return &resp, nil
}

// readLocked reads one datagram, honouring both ctx and the round-trip timeout.
func (c *Client) readLocked(ctx context.Context) ([]byte, error) {
	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("setting read deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now()) //nolint:errcheck // best effort wake-up
	})
	defer stop()

	buf := make([]byte, readBufferSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if c.closed.Load() {
			return nil, ErrClosed
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			c.timeouts.Add(1)
			return nil, ErrTimeout
		}
		c.errorsTotal.Add(1)
		return nil, fmt.Errorf("reading reply: %w", err)
	}

	c.lastActivity.Store(time.Now().Unix())
	return buf[:n], nil
}

func (c *Client) nextRequestID() int {
	if c.nextID > maxRequestID || c.nextID < 1 {
		c.nextID = 1
	}
	id := c.nextID
	c.nextID++
	return id
}

// Stats returns a snapshot of the client counters.
func (c *Client) Stats() Stats {
	var last time.Time
	if ts := c.lastActivity.Load(); ts > 0 {
		last = time.Unix(ts, 0)
	}
	return Stats{
		RequestsTx:   c.requestsTx.Load(),
		RepliesRx:    c.repliesRx.Load(),
		Timeouts:     c.timeouts.Load(),
		ErrorsTotal:  c.errorsTotal.Load(),
		Handshakes:   c.handshakes.Load(),
		LastActivity: last,
	}
}

// Close releases the socket, waking any read in progress. Further calls
// return ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) logDebug(msg string, args ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Debug(msg, args...)
	}
}

// decodeResultArray accepts the array most commands return, and wraps a
// bare scalar for firmware that replies with "ok" instead of ["ok"].
func decodeResultArray(raw json.RawMessage) ([]any, error) {
	var arr []any
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr, nil
	}
	var single any
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, &ReplyError{Err: fmt.Errorf("decoding result: %w", err)}
	}
	return []any{single}, nil
}
