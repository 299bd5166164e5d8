package airdog

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-airdog/internal/purifier"
)

// State sources recorded with each published snapshot.
const (
	SourcePoll    = "poll"
	SourceCommand = "command"
	SourceStartup = "startup"
)

// followUpRefresh lists intents whose effect is only visible after a fresh
// status read. Power changes are applied locally and skip the next poll.
var followUpRefresh = map[purifier.Intent]bool{
	purifier.IntentSetSpeed:     true,
	purifier.IntentSetMode:      true,
	purifier.IntentSetChildLock: true,
	purifier.IntentLock:         true,
	purifier.IntentUnlock:       true,
	purifier.IntentClean:        true,
}

// job is one unit of work on a device queue.
type job struct {
	msg    CommandMessage
	cmd    purifier.Command
	source string

	// reply is nil for MQTT commands; Execute waits on it.
	reply chan purifier.Result
}

// deviceWorker owns one purifier. Every device call happens on its
// goroutine, so the adapter never sees concurrent operations.
type deviceWorker struct {
	id        string
	host      string
	transport DeviceTransport
	adapter   *purifier.Adapter
	queue     chan job
	pollEvery time.Duration
	bridge    *Bridge

	mu        sync.RWMutex
	model     string
	firmware  string
	uniqueID  string
	detected  bool
	supported bool
	published *purifier.State
}

// identify reads miIO.info. A configured model is trusted and only the
// firmware is filled in; an empty model is taken from the device.
func (w *deviceWorker) identify(ctx context.Context) error {
	info, err := w.transport.Info(ctx)

	w.mu.Lock()
	if err != nil {
		detected := w.detected
		w.mu.Unlock()
		if detected {
			w.bridge.logDebug("device info unavailable", "device_id", w.id, "error", err)
			return nil
		}
		return fmt.Errorf("%w: %w", ErrModelUnknown, err)
	}

	if !w.detected {
		w.model = info.Model
		w.detected = true
		w.supported = info.Model == config.SupportedModel
	}
	if info.FirmwareVersion != "" {
		w.firmware = info.FirmwareVersion
	}
	if info.MAC != "" {
		w.uniqueID = info.UniqueID()
	}
	w.adapter.SetDeviceInfo(w.model, w.firmware)
	identity, supported := w.identityLocked(), w.supported
	w.mu.Unlock()

	if !supported {
		w.bridge.logWarn("unsupported purifier model", "device_id", w.id, "model", identity.Model)
	} else {
		w.bridge.logInfo("device identified",
			"device_id", w.id,
			"model", identity.Model,
			"firmware", identity.FirmwareVersion,
			"unique_id", identity.UniqueID)
	}
	w.bridge.saveInfo(ctx, identity)
	return nil
}

// ready returns nil when the device may be driven, retrying detection when
// the model is still unknown.
func (w *deviceWorker) ready(ctx context.Context) error {
	w.mu.RLock()
	detected, supported, model := w.detected, w.supported, w.model
	w.mu.RUnlock()

	if !detected {
		if err := w.identify(ctx); err != nil {
			return err
		}
		return w.ready(ctx)
	}
	if !supported {
		return fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
	}
	return nil
}

func (w *deviceWorker) run(ctx context.Context) {
	defer w.bridge.wg.Done()

	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case j := <-w.queue:
			w.execute(ctx, j)
		case <-ticker.C:
			w.poll(ctx, SourcePoll)
		}
	}
}

// drain answers waiting callers once the worker stops.
func (w *deviceWorker) drain() {
	for {
		select {
		case j := <-w.queue:
			if j.reply != nil {
				j.reply <- purifier.Result{Intent: j.cmd.Intent, Outcome: purifier.OutcomeUnreachable, Err: ErrBridgeStopped}
			}
		default:
			return
		}
	}
}

// poll refreshes the adapter and publishes when anything changed.
func (w *deviceWorker) poll(ctx context.Context, source string) purifier.Result {
	ctx, cancel := context.WithTimeout(ctx, w.bridge.commandTimeout)
	defer cancel()

	if err := w.ready(ctx); err != nil {
		return purifier.Result{Intent: purifier.IntentRefresh, Outcome: purifier.OutcomeUnreachable, Err: err}
	}

	result := w.adapter.Refresh(ctx)
	w.bridge.stats.polls.Add(1)
	if !result.OK() {
		w.bridge.stats.pollErrors.Add(1)
	}
	if result.Outcome != purifier.OutcomeSkipped {
		w.publishIfChanged(source)
	}
	return result
}

// execute runs one command, acks it and publishes the resulting state.
func (w *deviceWorker) execute(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, w.bridge.commandTimeout)
	defer cancel()

	started := time.Now()
	var result purifier.Result
	if err := w.ready(ctx); err != nil {
		result = purifier.Result{Intent: j.cmd.Intent, Outcome: purifier.OutcomeUnreachable, Err: err}
		if errors.Is(err, ErrUnsupportedModel) {
			result.Outcome = purifier.OutcomeRejected
		}
	} else {
		result = w.adapter.Dispatch(ctx, j.cmd)
	}
	elapsed := time.Since(started)

	w.bridge.stats.commands.Add(1)
	if !result.OK() {
		w.bridge.stats.commandsFailed.Add(1)
	}

	w.bridge.logInfo("command finished",
		"device_id", w.id,
		"command_id", j.msg.ID,
		"intent", j.cmd.Intent,
		"outcome", result.Outcome,
		"elapsed", elapsed)

	w.bridge.publishAck(NewAckMessage(j.msg, w.id, result))
	w.bridge.notifyCommand(CommandOutcome{
		CommandID:  j.msg.ID,
		DeviceID:   w.id,
		Command:    j.msg.Command,
		Parameters: j.msg.Parameters,
		Source:     j.source,
		Result:     result,
		Elapsed:    elapsed,
	})

	if result.Outcome == purifier.OutcomeSuccess {
		if followUpRefresh[result.Intent] {
			w.adapter.Refresh(ctx)
		}
		w.publish(SourceCommand)
	} else if result.DeviceFault() {
		w.publishIfChanged(SourceCommand)
	}

	if j.reply != nil {
		j.reply <- result
	}
}

func (w *deviceWorker) publishIfChanged(source string) {
	state := w.adapter.State()

	w.mu.RLock()
	last := w.published
	w.mu.RUnlock()

	if last != nil && sameState(*last, state) {
		return
	}
	w.publishState(state, source)
}

func (w *deviceWorker) publish(source string) {
	w.publishState(w.adapter.State(), source)
}

func (w *deviceWorker) publishState(state purifier.State, source string) {
	w.mu.Lock()
	w.published = &state
	w.mu.Unlock()

	w.bridge.publishState(w.id, w.adapter.Name(), state, source)
}

// sameState compares everything a subscriber can see. Revision is ignored.
func sameState(a, b purifier.State) bool {
	if a.Available != b.Available {
		return false
	}
	if (a.IsOn == nil) != (b.IsOn == nil) || (a.IsOn != nil && *a.IsOn != *b.IsOn) {
		return false
	}
	return reflect.DeepEqual(a.Attributes, b.Attributes)
}

// status snapshots the worker for the API and list_devices.
func (w *deviceWorker) status() DeviceStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return DeviceStatus{
		Identity:  w.identityLocked(),
		Host:      w.host,
		Detected:  w.detected,
		Supported: w.supported,
		State:     w.adapter.State(),
	}
}

func (w *deviceWorker) identityLocked() Identity {
	return Identity{
		DeviceID:        w.id,
		Name:            w.adapter.Name(),
		Model:           w.model,
		FirmwareVersion: w.firmware,
		UniqueID:        w.uniqueID,
	}
}
