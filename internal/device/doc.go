// Package device persists what the bridge learns about each purifier.
//
// Two SQLite tables back it:
//
//	state_history  one row per published snapshot (poll, command, startup)
//	device_info    last identity reported by miIO.info
//
// The schema lives in the top-level migrations package; repositories take a
// plain *sql.DB so tests can run against an in-memory database.
//
// # Usage
//
//	history := device.NewSQLiteStateHistoryRepository(db.DB)
//	err := history.RecordStateChange(ctx, device.StateHistoryEntry{
//	    DeviceID:  "bedroom",
//	    Available: true,
//	    State:     device.State{"aqi": 12},
//	    Source:    device.SourcePoll,
//	})
//
//	entries, err := history.History(ctx, device.HistoryQuery{
//	    DeviceID: "bedroom",
//	    Source:   device.SourceCommand,
//	    Limit:    20,
//	})
//	summary, err := history.AirQuality(ctx, "bedroom", time.Now().Add(-24*time.Hour))
package device
