// Package junction implements the phase scheduler of a sensor-driven
// four-way intersection.
//
// A Controller owns the sensors of one intersection. Collaborators report
// sensor changes with ReportSensor and subscribe to complete LightState
// snapshots. The controller serves the longest-waiting active sensor first,
// batches the compatible requests its RuleTable allows into the same phase,
// and separates phases with yellow and all-red clearance intervals:
//
//	ctrl, err := junction.New(junction.StandardRules(), junction.DefaultConfig(),
//		func(s junction.LightState) { fmt.Println(s) })
//	if err != nil {
//		return err
//	}
//	defer ctrl.Close()
//
//	ctrl.ReportSensor(junction.NorthLeft, true)
package junction

import "time"

// Duration converts an integer number of milliseconds to a time.Duration
func Duration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
