// Package mqtt provides broker connectivity for the Airdog bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and payload validation
//   - Subscriptions that survive reconnects
//   - A Last Will on the health topic for crash detection
//
// # Topics
//
// The bridge owns the graylogic/{category}/airdog/... namespace:
//
//	graylogic/command/airdog/{device_id}    inbound commands
//	graylogic/ack/airdog/{device_id}        command acknowledgements
//	graylogic/state/airdog/{device_id}      retained device state
//	graylogic/request/airdog/{request_id}   inbound requests
//	graylogic/response/airdog/{request_id}  request responses
//	graylogic/health/airdog                 retained bridge health and LWT
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1, handleCommand)
package mqtt
