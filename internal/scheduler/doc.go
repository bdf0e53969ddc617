// Package scheduler runs a drift-corrected periodic publish loop.
//
// Send n targets start + n*Period (or start + (n-1)*Period with
// Schedule.Immediate). The loop waits for each deadline with a timer and the
// stop channel in one select, and re-checks the stop flag after every wake,
// so a stop request ends the wait promptly whatever the remaining time.
//
//	sched, err := scheduler.NewSchedule(3*time.Second, 0)
//	if err != nil {
//	    return err // configuration error, nothing started yet
//	}
//	res, err := scheduler.Run(ctx, sched, publish, shutdown.Process())
package scheduler
