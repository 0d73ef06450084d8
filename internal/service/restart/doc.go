// Package restart starts the latest installed version of the running app
// through the portal Spawn call.
//
// Restart checks the requested spawn flags against the portal version,
// optionally waits for the SpawnStarted signal and, when sandbox pids are
// exposed, confirms that the new instance is visible in the process table.
package restart
