// Package database opens the bridge's SQLite file and keeps its schema
// current.
//
// Tables (see the top-level migrations directory):
//
//	state_history   purifier snapshots, one row per published change
//	device_info     last miIO.info reply per purifier
//	command_audit   every executed command and its outcome
//
// Timestamps are stored with FormatTime so that ORDER BY on the text
// column is chronological. The file is created 0600; device tokens never
// reach it.
//
//	db, err := database.Open(database.FromConfig(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
