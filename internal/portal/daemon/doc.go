// Package daemon watches a directory of YAML seed files and keeps the
// reference catalogue in the database in step with it.
//
// On start the whole directory is applied in one transaction. After that,
// every create or write of a *.yaml / *.yml file is queued and applied once
// the file has been quiet for the debounce interval. Several files settling
// in the same tick are applied together.
//
//	d, err := daemon.New(database, "seed", &daemon.Config{
//	    DebounceInterval: 300 * time.Millisecond,
//	    Events:           feed,
//	})
//	if err != nil {
//	    return err
//	}
//	go d.Start(ctx)
//
// Deleting a seed file does not delete its records.
package daemon
