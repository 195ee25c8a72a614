package lottery

import (
	"fmt"

	"lottochain/crypto"
)

// adminUpdate loads the ledger, checks the caller and persists the mutated
// copy when mutate succeeds.
func (e *Engine) adminUpdate(sender crypto.Address, mutate func(*CycleState) error) (*CycleState, error) {
	cycle, err := e.loadCycle()
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(cycle, sender); err != nil {
		return nil, err
	}
	if err := mutate(cycle); err != nil {
		return nil, err
	}
	if err := e.state.PutLotteryCycle(cycle); err != nil {
		return nil, err
	}
	return cycle.Clone(), nil
}

// OptInRewardAsset marks the application as able to hold and mint the reward
// asset.
func (e *Engine) OptInRewardAsset(sender crypto.Address) (*CycleState, error) {
	return e.adminUpdate(sender, func(c *CycleState) error {
		c.AssetOptedIn = true
		return nil
	})
}

// EndCycleNow closes the purchase window immediately.
func (e *Engine) EndCycleNow(sender crypto.Address) (*CycleState, error) {
	now := e.now()
	return e.adminUpdate(sender, func(c *CycleState) error {
		c.EndTime = now
		return nil
	})
}

// ResetCycleTiming restarts the purchase window without touching the cycle
// id, pot or entries.
func (e *Engine) ResetCycleTiming(sender crypto.Address) (*CycleState, error) {
	now := e.now()
	return e.adminUpdate(sender, func(c *CycleState) error {
		c.StartTime = now
		c.EndTime = now + int64(c.Duration)
		return nil
	})
}

// SetCycleDuration changes the length of future purchase windows.
func (e *Engine) SetCycleDuration(sender crypto.Address, seconds uint64) (*CycleState, error) {
	return e.adminUpdate(sender, func(c *CycleState) error {
		if err := ValidateCycleDuration(seconds); err != nil {
			return err
		}
		c.Duration = seconds
		return nil
	})
}

// SetEngineeringWallet changes the recipient of the engineering share.
func (e *Engine) SetEngineeringWallet(sender, wallet crypto.Address) (*CycleState, error) {
	return e.adminUpdate(sender, func(c *CycleState) error {
		if wallet.IsZero() {
			return fmt.Errorf("%w: empty wallet", ErrInvalidParameter)
		}
		c.EngineeringWallet = wallet
		return nil
	})
}

// SetTokenDistWallet changes the recipient of the token-holder share.
func (e *Engine) SetTokenDistWallet(sender, wallet crypto.Address) (*CycleState, error) {
	return e.adminUpdate(sender, func(c *CycleState) error {
		if wallet.IsZero() {
			return fmt.Errorf("%w: empty wallet", ErrInvalidParameter)
		}
		c.TokenDistWallet = wallet
		return nil
	})
}

// SetTestMode toggles the early-commit bypass. mode must be 0 or 1.
func (e *Engine) SetTestMode(sender crypto.Address, mode uint64) (*CycleState, error) {
	return e.adminUpdate(sender, func(c *CycleState) error {
		if mode > 1 {
			return fmt.Errorf("%w: test mode must be 0 or 1", ErrInvalidParameter)
		}
		c.TestMode = mode == 1
		return nil
	})
}

// SetRewardRate changes the reward tokens minted per entry.
func (e *Engine) SetRewardRate(sender crypto.Address, rate uint64) (*CycleState, error) {
	return e.adminUpdate(sender, func(c *CycleState) error {
		if err := ValidateRewardRate(rate); err != nil {
			return err
		}
		c.RewardRate = rate
		return nil
	})
}

// SetPaused toggles the pause flag.
func (e *Engine) SetPaused(sender crypto.Address, paused bool) (*CycleState, error) {
	return e.adminUpdate(sender, func(c *CycleState) error {
		c.Paused = paused
		return nil
	})
}
