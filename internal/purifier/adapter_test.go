package purifier

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func newTestAdapter(t *testing.T, tr *mockTransport) *Adapter {
	t.Helper()
	a, err := NewAdapter(newTestDriver(t, tr), AdapterOptions{
		Name:  "Living Room",
		Model: "airdog.airpurifier.x5",
	})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	return a
}

func statusProps() []any {
	return []any{"off", "auto", float64(1), "unlock", float64(18), "n"}
}

func intPtr(v int) *int { return &v }

func TestAdapter_InitialState(t *testing.T) {
	a := newTestAdapter(t, newMockTransport())

	if a.Available() {
		t.Error("new adapter should be unavailable")
	}
	if _, ok := a.IsOn(); ok {
		t.Error("new adapter should have unknown power state")
	}

	attrs := a.Attributes()
	if attrs[AttrModel] != "airdog.airpurifier.x5" {
		t.Errorf("model = %v", attrs[AttrModel])
	}
	if attrs[AttrFirmwareVersion] != FirmwareUnknown {
		t.Errorf("firmware_version = %v, want %q", attrs[AttrFirmwareVersion], FirmwareUnknown)
	}
	if !reflect.DeepEqual(attrs[AttrModeList], []string{"auto", "sleep", "manual"}) {
		t.Errorf("mode_list = %v", attrs[AttrModeList])
	}
	if !reflect.DeepEqual(attrs[AttrSpeedList], []string{"1", "2", "3", "4"}) {
		t.Errorf("speed_list = %v", attrs[AttrSpeedList])
	}
	for _, k := range []string{AttrPower, AttrMode, AttrSpeed, AttrChildLock, AttrAQI, AttrClean} {
		if v, ok := attrs[k]; !ok || v != nil {
			t.Errorf("attrs[%q] = %v, want present and nil", k, v)
		}
	}
}

func TestAdapter_TurnOnSuppressesExactlyOnePoll(t *testing.T) {
	tr := newMockTransport()
	tr.props = statusProps()
	a := newTestAdapter(t, tr)

	if r := a.TurnOn(context.Background(), nil); r.Outcome != OutcomeSuccess {
		t.Fatalf("TurnOn() = %v", r)
	}
	if on, ok := a.IsOn(); !ok || !on {
		t.Fatalf("IsOn() = %v,%v after TurnOn", on, ok)
	}

	r := a.Refresh(context.Background())
	if r.Outcome != OutcomeSkipped {
		t.Errorf("first Refresh() = %v, want skipped", r)
	}
	if tr.reads() != 0 {
		t.Errorf("first Refresh() read the device %d times", tr.reads())
	}
	if on, _ := a.IsOn(); !on {
		t.Error("first Refresh() must leave is_on=true")
	}

	if r := a.Refresh(context.Background()); r.Outcome != OutcomeSuccess {
		t.Errorf("second Refresh() = %v, want success", r)
	}
	if tr.reads() != 1 {
		t.Errorf("second Refresh() reads = %d, want 1", tr.reads())
	}
	if on, _ := a.IsOn(); on {
		t.Error("second Refresh() should apply device power=off")
	}
}

func TestAdapter_TurnOffSuppressesPoll(t *testing.T) {
	tr := newMockTransport()
	a := newTestAdapter(t, tr)

	if r := a.TurnOff(context.Background()); !r.OK() {
		t.Fatalf("TurnOff() = %v", r)
	}
	if on, ok := a.IsOn(); !ok || on {
		t.Errorf("IsOn() = %v,%v, want false,true", on, ok)
	}
	if !a.Available() {
		t.Error("successful command should mark the adapter available")
	}
	if r := a.Refresh(context.Background()); r.Outcome != OutcomeSkipped {
		t.Errorf("Refresh() = %v, want skipped", r)
	}
}

func TestAdapter_TurnOnWithSpeed(t *testing.T) {
	tr := newMockTransport()
	a := newTestAdapter(t, tr)

	r := a.TurnOn(context.Background(), intPtr(3))
	if r.Outcome != OutcomeSuccess || r.Intent != IntentTurnOn {
		t.Fatalf("TurnOn(3) = %v", r)
	}

	want := []sentCall{{"set_wind", []int{1, 3}}}
	if got := tr.calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("sent %+v, want %+v", got, want)
	}
	if _, ok := a.IsOn(); ok {
		t.Error("TurnOn with speed delegates to set_speed and must not touch is_on")
	}
}

func TestAdapter_TurnOnFailureKeepsIsOn(t *testing.T) {
	tr := newMockTransport()
	a := newTestAdapter(t, tr)

	if r := a.TurnOff(context.Background()); !r.OK() {
		t.Fatalf("TurnOff() = %v", r)
	}

	tr.sendErr = context.DeadlineExceeded
	r := a.TurnOn(context.Background(), nil)

	if r.Outcome != OutcomeUnreachable {
		t.Errorf("TurnOn() outcome = %v, want unreachable", r.Outcome)
	}
	if !errors.Is(r.Err, ErrDeviceUnreachable) {
		t.Errorf("TurnOn() err = %v, want ErrDeviceUnreachable", r.Err)
	}
	if a.Available() {
		t.Error("adapter should be unavailable after a device failure")
	}
	if on, ok := a.IsOn(); !ok || on {
		t.Errorf("IsOn() = %v,%v, want unchanged false", on, ok)
	}
}

func TestAdapter_RefreshFailureKeepsCache(t *testing.T) {
	tr := newMockTransport()
	tr.props = []any{"on", "sleep", float64(1), "lock", float64(55), "y"}
	a := newTestAdapter(t, tr)

	if r := a.Refresh(context.Background()); r.Outcome != OutcomeSuccess {
		t.Fatalf("Refresh() = %v", r)
	}
	before := a.Attributes()
	if !a.Available() {
		t.Fatal("adapter should be available after a good poll")
	}

	tr.propsErr = errors.New("read udp: i/o timeout")
	r := a.Refresh(context.Background())

	if r.Outcome != OutcomeUnreachable {
		t.Errorf("Refresh() outcome = %v, want unreachable", r.Outcome)
	}
	if a.Available() {
		t.Error("adapter should be unavailable after a failed poll")
	}
	if after := a.Attributes(); !reflect.DeepEqual(before, after) {
		t.Errorf("attributes changed on failure:\n before %v\n after  %v", before, after)
	}
	if on, ok := a.IsOn(); !ok || !on {
		t.Errorf("IsOn() = %v,%v, want cached true", on, ok)
	}
}

func TestAdapter_RefreshPopulatesAttributes(t *testing.T) {
	tr := newMockTransport()
	tr.props = []any{"on", "manual", float64(3), "lock", float64(42), "y"}
	a := newTestAdapter(t, tr)

	a.Refresh(context.Background())
	attrs := a.Attributes()

	want := map[string]any{
		AttrPower:     "on",
		AttrMode:      "manual",
		AttrSpeed:     3,
		AttrChildLock: true,
		AttrAQI:       42,
		AttrClean:     true,
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attrs[%q] = %v (%T), want %v", k, attrs[k], attrs[k], v)
		}
	}
}

func TestAdapter_InvalidParameterSurfacedWithoutAvailabilityChange(t *testing.T) {
	tr := newMockTransport()
	tr.props = statusProps()
	a := newTestAdapter(t, tr)
	a.Refresh(context.Background())

	r := a.SetSpeed(context.Background(), 9)
	if r.Outcome != OutcomeInvalidParameter || !errors.Is(r.Err, ErrInvalidParameter) {
		t.Errorf("SetSpeed(9) = %v, want invalid parameter", r)
	}
	if r.OK() || r.DeviceFault() {
		t.Error("invalid parameter is neither OK nor a device fault")
	}
	if !a.Available() {
		t.Error("validation failure must not flip availability")
	}
	if len(tr.calls()) != 0 {
		t.Error("validation failure must not reach the transport")
	}
}

func TestAdapter_NonPowerCommandsDoNotSuppressPoll(t *testing.T) {
	tests := []struct {
		name string
		call func(ctx context.Context, a *Adapter) Result
	}{
		{"set speed", func(ctx context.Context, a *Adapter) Result { return a.SetSpeed(ctx, 2) }},
		{"set mode", func(ctx context.Context, a *Adapter) Result { return a.SetMode(ctx, ModeSleep, 1) }},
		{"lock", func(ctx context.Context, a *Adapter) Result { return a.Lock(ctx) }},
		{"unlock", func(ctx context.Context, a *Adapter) Result { return a.Unlock(ctx) }},
		{"clean", func(ctx context.Context, a *Adapter) Result { return a.Clean(ctx) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newMockTransport()
			tr.props = statusProps()
			a := newTestAdapter(t, tr)

			if r := tt.call(context.Background(), a); !r.OK() {
				t.Fatalf("call = %v", r)
			}
			if _, ok := a.IsOn(); ok {
				t.Error("command should not set is_on")
			}
			if r := a.Refresh(context.Background()); r.Outcome != OutcomeSuccess {
				t.Errorf("Refresh() = %v, want success (not suppressed)", r)
			}
		})
	}
}

func TestAdapter_RefusedCommandKeepsAvailability(t *testing.T) {
	tr := newMockTransport()
	tr.props = statusProps()
	a := newTestAdapter(t, tr)
	if r := a.Refresh(context.Background()); r.Outcome != OutcomeSuccess {
		t.Fatalf("Refresh() = %v", r)
	}
	rev := a.State().Revision

	tr.sendResult = []any{"error"}
	r := a.SetChildLock(context.Background(), true)
	if r.Outcome != OutcomeRejected || !errors.Is(r.Err, ErrCommandRejected) {
		t.Errorf("SetChildLock() = %v, want rejected", r)
	}
	if r.OK() || r.DeviceFault() {
		t.Error("a refusal is neither OK nor a device fault")
	}
	if !a.Available() {
		t.Error("a device that answers must stay available")
	}
	if got := a.State().Revision; got != rev {
		t.Errorf("revision = %d, want %d after a refused command", got, rev)
	}
	if a.Attributes()[AttrChildLock] != false {
		t.Error("refused lock must not change the cached attribute")
	}
}

func TestAdapter_ProtocolErrorOutcome(t *testing.T) {
	tr := newMockTransport()
	tr.sendErr = fakeProtocolErr{}
	a := newTestAdapter(t, tr)

	r := a.Clean(context.Background())
	if r.Outcome != OutcomeProtocolError || !r.DeviceFault() {
		t.Errorf("Clean() = %v, want protocol error", r)
	}
	if a.Available() {
		t.Error("protocol error should mark the adapter unavailable")
	}
}

func TestAdapter_RefreshSupersededByCommand(t *testing.T) {
	tr := newMockTransport()
	tr.props = statusProps()
	a := newTestAdapter(t, tr)

	// Simulate a command landing while the status read is in flight.
	inner := a.driver.handle.Transport
	a.driver.handle.Transport = transportFunc{
		send: inner.Send,
		get: func(ctx context.Context, names []string, max int) ([]any, error) {
			a.mu.Lock()
			a.revision++
			a.mu.Unlock()
			return inner.GetProperties(ctx, names, max)
		},
	}

	if r := a.Refresh(context.Background()); r.Outcome != OutcomeSkipped {
		t.Errorf("Refresh() = %v, want skipped", r)
	}
	if a.Attributes()[AttrPower] != nil {
		t.Error("superseded poll must not be applied")
	}
}

func TestAdapter_SetDeviceInfo(t *testing.T) {
	a := newTestAdapter(t, newMockTransport())
	a.SetDeviceInfo("", "1.2.3")

	st := a.State()
	if st.Attributes[AttrModel] != "airdog.airpurifier.x5" {
		t.Errorf("empty model should not overwrite, got %v", st.Attributes[AttrModel])
	}
	if st.Attributes[AttrFirmwareVersion] != "1.2.3" {
		t.Errorf("firmware = %v", st.Attributes[AttrFirmwareVersion])
	}
}

func TestAdapter_StateIsACopy(t *testing.T) {
	a := newTestAdapter(t, newMockTransport())
	a.TurnOn(context.Background(), nil)

	st := a.State()
	*st.IsOn = false
	st.Attributes[AttrPower] = "tampered"

	if on, _ := a.IsOn(); !on {
		t.Error("mutating State().IsOn leaked into the adapter")
	}
	if a.Attributes()[AttrPower] == "tampered" {
		t.Error("mutating State().Attributes leaked into the adapter")
	}
	if st.Revision != 1 {
		t.Errorf("Revision = %d, want 1", st.Revision)
	}
}

type transportFunc struct {
	send func(ctx context.Context, method string, params []int) ([]any, error)
	get  func(ctx context.Context, names []string, max int) ([]any, error)
}

func (f transportFunc) Send(ctx context.Context, method string, params []int) ([]any, error) {
	return f.send(ctx, method, params)
}

func (f transportFunc) GetProperties(ctx context.Context, names []string, max int) ([]any, error) {
	return f.get(ctx, names, max)
}
