// Package purifier drives the airdog.airpurifier.x5 air purifier.
//
// It has two layers:
//
//	┌──────────────────────────────┐
//	│ Adapter                      │  availability, on/off, attribute cache,
//	│  TurnOn / SetMode / Refresh  │  poll suppression, Result values
//	└──────────────┬───────────────┘
//	               │
//	┌──────────────▼───────────────┐
//	│ Driver                       │  command vocabulary, validation,
//	│  PowerOn / SetSpeed / Status │  status decoding, settle delay
//	└──────────────┬───────────────┘
//	               │ Transport.Send / Transport.GetProperties
//	               ▼
//	         miio over UDP
//
// Wire vocabulary:
//
//	set_power [1|0]
//	set_wind  [0,1] auto, [1,speed] manual, [2,1] sleep
//	set_lock  [1|0]
//	set_clean []
//	get_prop  power mode speed lock pm clean
//
// The adapter never returns a Go error. Every operation returns a Result
// whose Outcome separates rejected input from device faults. Device faults
// mark the adapter unavailable and keep the attribute cache as it was.
package purifier
