package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/config"
)

// fakeInflux answers /ping and records line protocol sent to /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu     sync.Mutex
	lines  []string
	bucket string
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.bucket = r.URL.Query().Get("bucket")
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) waitForLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		got := append([]string(nil), f.lines...)
		f.mu.Unlock()
		if len(got) >= n {
			return got
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines", n)
	return nil
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "home",
		Bucket:        "purifiers",
		BatchSize:     1,
		FlushInterval: 1,
	}
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	if _, err := Connect(context.Background(), cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := Connect(context.Background(), testConfig(url)); !errors.Is(err, ErrUnhealthy) {
		t.Errorf("Connect() error = %v, want ErrUnhealthy", err)
	}
}

func TestConnect_WritesSamples(t *testing.T) {
	fake := newFakeInflux(t)

	client, err := Connect(context.Background(), testConfig(fake.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.WritePurifierSample(PurifierSample{
		DeviceID:  "bedroom",
		Model:     "airdog.airpurifier.x5",
		Available: true,
		PowerOn:   boolPtr(true),
		AQI:       intPtr(17),
		Speed:     intPtr(2),
		Mode:      "manual",
	})
	client.WriteCommandOutcome("bedroom", "set_speed", "success", 520*time.Millisecond)
	client.Flush()

	lines := fake.waitForLines(t, 2)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{
		"purifier,device_id=bedroom,model=airdog.airpurifier.x5",
		"aqi=17i",
		"fan_speed=2i",
		"power_on=true",
		`mode="manual"`,
		"purifier_command,device_id=bedroom,intent=set_speed,outcome=success duration_ms=520i",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("line protocol missing %q:\n%s", want, joined)
		}
	}
	if strings.Contains(joined, "child_lock") {
		t.Error("unreported child_lock must be omitted")
	}

	fake.mu.Lock()
	bucket := fake.bucket
	fake.mu.Unlock()
	if bucket != "purifiers" {
		t.Errorf("bucket = %q, want purifiers", bucket)
	}
}

func TestClose(t *testing.T) {
	fake := newFakeInflux(t)
	client, err := Connect(context.Background(), testConfig(fake.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrClosed", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	// Writes and flushes after Close are dropped silently.
	client.WritePurifierSample(PurifierSample{DeviceID: "bedroom"})
	client.Flush()
}

func TestConnect_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	if _, err := Connect(context.Background(), testConfig(srv.URL)); !errors.Is(err, ErrUnhealthy) {
		t.Errorf("Connect() error = %v, want ErrUnhealthy", err)
	}
}

func TestWriteOptions(t *testing.T) {
	opts := writeOptions(config.InfluxDBConfig{})
	if opts.BatchSize() != fallbackBatchSize || opts.FlushInterval() != 10000 {
		t.Errorf("fallback batch/flush = %d/%d", opts.BatchSize(), opts.FlushInterval())
	}
	if opts.Precision() != time.Millisecond {
		t.Errorf("precision = %v, want ms", opts.Precision())
	}

	opts = writeOptions(config.InfluxDBConfig{BatchSize: 5, FlushInterval: 2})
	if opts.BatchSize() != 5 || opts.FlushInterval() != 2000 {
		t.Errorf("batch/flush = %d/%d, want 5/2000", opts.BatchSize(), opts.FlushInterval())
	}
}

func TestSetOnError(t *testing.T) {
	c := &Client{}
	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	errs := make(chan error, 1)
	errs <- errors.New("write rejected")
	close(errs)
	c.forwardErrors(errs)

	if err := <-got; err.Error() != "write rejected" {
		t.Errorf("callback got %v", err)
	}
}

func TestClose_Nil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero Client error = %v", err)
	}
	client.Flush()
}

func TestPurifierPoint(t *testing.T) {
	ts := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	p := purifierPoint(PurifierSample{
		DeviceID:  "office",
		Available: false,
		ChildLock: boolPtr(true),
		Clean:     boolPtr(false),
	}, ts)

	if p.Name() != MeasurementPurifier {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(ts) {
		t.Errorf("Time() = %v", p.Time())
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["device_id"] != "office" {
		t.Errorf("tags = %v", tags)
	}
	if _, ok := tags["model"]; ok {
		t.Error("empty model should not be tagged")
	}

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	want := map[string]any{"available": false, "child_lock": true, "filter_clean": false}
	if len(fields) != len(want) {
		t.Errorf("fields = %v, want %v", fields, want)
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s = %v, want %v", k, fields[k], v)
		}
	}
}
