// Package config loads the bridge's YAML configuration.
//
// Values are layered: built-in defaults, then the file, then AIRDOG_*
// environment variables (AIRDOG_MQTT_HOST, AIRDOG_MQTT_PORT, ...). Device
// tokens can come from AIRDOG_DEVICE_<ID>_TOKEN so the file itself holds no
// secrets. Per-device fields left empty get the purifier defaults, and
// Validate reports every problem at once rather than stopping at the first.
//
// DeviceConfig and MQTTAuthConfig mask their secrets in String and
// MarshalJSON.
//
//	cfg, err := config.Load("configs/airdog.yaml")
//	if err != nil {
//	    return err
//	}
//	for _, d := range cfg.Devices {
//	    log.Info("device", "device", d.String())
//	}
package config
