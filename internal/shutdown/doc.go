// Package shutdown provides the cooperative stop signal for mqtt-client-app.
//
// A single process-wide Signal is set from the OS signal relay (SIGINT,
// SIGTERM) and observed by every blocking wait in the client: the subscribe
// handshake and the publish scheduler's deadline wait. Cancellation is
// cooperative only; nothing is forcibly terminated.
//
// # Usage
//
//	stop := shutdown.Process()
//	release := stop.NotifyOnSignals(os.Interrupt, syscall.SIGTERM)
//	defer release()
//
//	select {
//	case <-stop.Done():
//	    // stop requested
//	case <-timer.C:
//	    if stop.Stopped() { ... } // re-check after every wake
//	}
package shutdown
