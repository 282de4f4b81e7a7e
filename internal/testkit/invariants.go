package testkit

import (
	"fmt"

	"asynctimer/driver"
)

// CheckDriverInvariants verifies that a driver's observable state is
// consistent:
// 1) only an armed driver reports expiry
// 2) Status is Fired exactly when an armed driver is expired
// 3) a driver that is not armed has no pending fire
func CheckDriverInvariants(d driver.Driver) error {
	if d == nil {
		return fmt.Errorf("nil driver")
	}
	st := d.Status()
	expired := d.IsExpired()
	switch st {
	case driver.StatusFired:
		if !expired {
			return fmt.Errorf("%s: status fired but not expired", d.Kind())
		}
	case driver.StatusArmed:
		if expired {
			return fmt.Errorf("%s: status armed but expired", d.Kind())
		}
	case driver.StatusIdle, driver.StatusCancelled, driver.StatusClosed:
		if expired {
			return fmt.Errorf("%s: status %s but expired", d.Kind(), st)
		}
	default:
		return fmt.Errorf("%s: unknown status %d", d.Kind(), st)
	}
	if d.State() == nil {
		return fmt.Errorf("%s: nil wake state", d.Kind())
	}
	return nil
}
