package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-airdog/internal/bridges/airdog"
	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-airdog/internal/purifier"
)

const usageText = `  info                          Model, firmware and network details
  status                        Read power, mode, speed, lock, AQI and filter flag
  state                         Cached adapter state from this session
  on [speed]                    Power on, optionally in manual mode at speed
  off                           Power off
  set-mode <auto|manual|sleep> [speed]
  set-speed <0-4>               Manual fan speed (0 selects auto)
  child-lock <on|off>           Lock or unlock the control panel
  clean                         Reset the filter-clean reminder
  refresh                       Re-read status into the cached state
  shell                         Interactive prompt accepting the verbs above
`

// commandSource tags acks produced by this tool.
const commandSource = "cli"

// session drives one purifier. It keeps an adapter for the life of the
// process so the shell sees optimistic on/off state across verbs.
type session struct {
	id        string
	host      string
	transport airdog.DeviceTransport
	driver    *purifier.Driver
	adapter   *purifier.Adapter
	out       io.Writer
	asJSON    bool
}

func newSession(transport airdog.DeviceTransport, host string, settle time.Duration, out io.Writer, asJSON bool) (*session, error) {
	driver, err := purifier.NewDriver(purifier.DeviceHandle{
		Host:        host,
		Transport:   transport,
		SettleDelay: settle,
	})
	if err != nil {
		return nil, err
	}
	adapter, err := purifier.NewAdapter(driver, purifier.AdapterOptions{Name: host})
	if err != nil {
		return nil, err
	}
	return &session{
		id:        uuid.NewString(),
		host:      host,
		transport: transport,
		driver:    driver,
		adapter:   adapter,
		out:       out,
		asJSON:    asJSON,
	}, nil
}

// exec runs one verb with its positional arguments.
func (s *session) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	verb := strings.ToLower(args[0])
	rest := args[1:]

	switch verb {
	case "help", "?":
		fmt.Fprint(s.out, usageText)
		return nil
	case "info":
		return s.info(ctx)
	case "status":
		return s.status(ctx)
	case "state":
		return s.print(stateView(s.adapter.State()))
	}

	name, params, err := commandArgs(verb, rest)
	if err != nil {
		return err
	}
	return s.command(ctx, name, params)
}

func (s *session) info(ctx context.Context) error {
	info, err := s.transport.Info(ctx)
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}
	s.adapter.SetDeviceInfo(info.Model, info.FirmwareVersion)

	if s.asJSON {
		return s.print(info)
	}
	fmt.Fprintf(s.out, "model:     %s\nfirmware:  %s\nhardware:  %s\nmac:       %s\nunique id: %s\n",
		info.Model, info.FirmwareVersion, info.HardwareVersion, info.MAC, info.UniqueID())
	if info.Model != config.SupportedModel {
		fmt.Fprintf(s.out, "warning:   model %q is not %s\n", info.Model, config.SupportedModel)
	}
	return nil
}

func (s *session) status(ctx context.Context) error {
	snap, err := s.driver.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if s.asJSON {
		return s.print(snap.Attributes())
	}
	fmt.Fprintln(s.out, snap.String())
	return nil
}

// command dispatches a device command through the adapter and prints the
// ack in the same shape the bridge publishes.
func (s *session) command(ctx context.Context, name string, params map[string]any) error {
	msg := airdog.CommandMessage{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		DeviceID:   s.host,
		Command:    name,
		Parameters: params,
		Source:     commandSource,
	}

	cmd, err := airdog.ParseCommand(name, params)
	if err != nil {
		ack := airdog.NewAckError(msg, s.host, airdog.SubmitErrorCode(err), err.Error())
		if perr := s.printAck(ack); perr != nil {
			return perr
		}
		return err
	}

	result := s.adapter.Dispatch(ctx, cmd)
	if err := s.printAck(airdog.NewAckMessage(msg, s.host, result)); err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("command failed: %s", result)
	}
	return nil
}

func (s *session) printAck(ack airdog.AckMessage) error {
	if s.asJSON {
		return s.print(ack)
	}
	if ack.Error != nil {
		fmt.Fprintf(s.out, "%s %s: %s (%s)\n", ack.Command, ack.Status, ack.Error.Message, ack.Error.Code)
		return nil
	}
	fmt.Fprintf(s.out, "%s %s (%s)\n", ack.Command, ack.Status, ack.Outcome)
	return nil
}

func (s *session) print(v any) error {
	if !s.asJSON {
		fmt.Fprintf(s.out, "%+v\n", v)
		return nil
	}
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stateJSON is the printable form of purifier.State.
type stateJSON struct {
	Available  bool           `json:"available"`
	IsOn       *bool          `json:"is_on"`
	Attributes map[string]any `json:"state"`
	Revision   uint64         `json:"revision"`
}

func stateView(st purifier.State) stateJSON {
	return stateJSON{Available: st.Available, IsOn: st.IsOn, Attributes: st.Attributes, Revision: st.Revision}
}

func (v stateJSON) String() string {
	on := "unknown"
	if v.IsOn != nil {
		on = fmt.Sprint(*v.IsOn)
	}
	return fmt.Sprintf("available=%t is_on=%s revision=%d state=%v", v.Available, on, v.Revision, v.Attributes)
}

var errArgs = errors.New("bad arguments")

// commandArgs maps a CLI verb and positional arguments to a bridge command
// name and parameter map. Hyphenated verbs become the underscored intent
// names; legacy aliases pass through to ParseCommand.
func commandArgs(verb string, args []string) (string, map[string]any, error) {
	name := strings.ReplaceAll(verb, "-", "_")
	params := map[string]any{}

	switch name {
	case "on", "turn_on":
		name = string(purifier.IntentTurnOn)
		if len(args) > 1 {
			return "", nil, fmt.Errorf("%w: on [speed]", errArgs)
		}
		if len(args) == 1 {
			params[airdog.ParamSpeed] = args[0]
		}

	case "set_speed", "speed":
		name = string(purifier.IntentSetSpeed)
		if len(args) != 1 {
			return "", nil, fmt.Errorf("%w: set-speed <0-4>", errArgs)
		}
		params[airdog.ParamSpeed] = args[0]

	case "set_mode", "mode":
		name = string(purifier.IntentSetMode)
		if len(args) < 1 || len(args) > 2 {
			return "", nil, fmt.Errorf("%w: set-mode <auto|manual|sleep> [speed]", errArgs)
		}
		params[airdog.ParamMode] = args[0]
		if len(args) == 2 {
			params[airdog.ParamSpeed] = args[1]
		}

	case "child_lock", "set_child_lock":
		name = string(purifier.IntentSetChildLock)
		if len(args) != 1 {
			return "", nil, fmt.Errorf("%w: child-lock <on|off>", errArgs)
		}
		switch strings.ToLower(args[0]) {
		case "on", "true", "lock":
			params[airdog.ParamLocked] = true
		case "off", "false", "unlock":
			params[airdog.ParamLocked] = false
		default:
			return "", nil, fmt.Errorf("%w: child-lock takes on or off, got %q", errArgs, args[0])
		}

	default:
		if len(args) > 0 {
			return "", nil, fmt.Errorf("%w: %s takes no arguments", errArgs, verb)
		}
	}

	if len(params) == 0 {
		params = nil
	}
	return name, params, nil
}
