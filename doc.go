// Package asynctimer provides timer-driven futures: a deadline race between a
// computation and a timer (Timed), a restartable timeout result (Expired), a
// periodic ticker (Interval) and a plain one-shot delay (Delay).
//
// Every combinator owns one driver.Driver. The driver arms an OS timer whose
// completion callback fires the driver's wake.State; the combinator registers
// the polling task's waker there and is polled again once the timer fires.
// Timers are released when the combinator completes or is closed, and as a
// last resort when it is garbage collected.
//
// Futures are polled by an executor such as asyncrt.Executor:
//
//	t, err := asynctimer.NewTimed(work, 50*time.Millisecond)
//	if err != nil {
//		return err
//	}
//	res, err := asyncrt.BlockOn[future.Result[int]](ctx, t)
package asynctimer
