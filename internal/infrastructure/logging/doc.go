// Package logging builds the bridge's structured logger on log/slog.
//
// Every entry carries the service name and build version. Attributes named
// token, password or secret are replaced with [REDACTED] before they are
// written, whatever handler is in use.
//
//	logging:
//	  level: info        # debug | info | warn | error
//	  format: json       # json | text
//	  output: stdout     # stdout | stderr | file
//	  file:
//	    path: /var/log/airdog/bridge.log
//
// Components take a child logger scoped to what they handle:
//
//	log := logging.New(cfg.Logging, version)
//	devLog := log.With("device_id", "bedroom")
//	devLog.Info("polled", "aqi", 12)
package logging
