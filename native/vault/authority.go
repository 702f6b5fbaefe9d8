package vault

import "github.com/zhanglu0523/rifi-vault/events"

// ProposeOwner starts a two-phase ownership handover. Only the current owner
// may propose; the handover takes effect when the proposee accepts.
func (e *Engine) ProposeOwner(caller, proposed [20]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if isZeroAddress(proposed) {
		return ErrZeroAddress
	}
	auth, err := e.ensureAuthority()
	if err != nil {
		return err
	}
	if auth.Owner != caller {
		return ErrUnauthorized
	}
	auth.PendingOwner = proposed
	if err := e.state.PutAuthority(auth); err != nil {
		return err
	}
	e.emit(events.VaultOwnerProposed{Owner: auth.Owner, Proposed: proposed})
	return nil
}

// AcceptOwner completes a pending handover. Only the proposed owner may
// accept; a second accept finds no proposal and fails.
func (e *Engine) AcceptOwner(caller [20]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	auth, err := e.ensureAuthority()
	if err != nil {
		return err
	}
	if isZeroAddress(auth.PendingOwner) {
		return ErrNoPendingOwner
	}
	if auth.PendingOwner != caller {
		return ErrNotPendingOwner
	}
	previous := auth.Owner
	auth.Owner = auth.PendingOwner
	auth.PendingOwner = [20]byte{}
	if err := e.state.PutAuthority(auth); err != nil {
		return err
	}
	e.emit(events.VaultOwnerAccepted{Previous: previous, Owner: auth.Owner})
	return nil
}

// HandoverStatus reports where an ownership transfer currently stands.
func (e *Engine) HandoverStatus() (HandoverState, error) {
	if e == nil || e.state == nil {
		return HandoverIdle, ErrNilState
	}
	auth, err := e.ensureAuthority()
	if err != nil {
		return HandoverIdle, err
	}
	if !isZeroAddress(auth.PendingOwner) {
		return HandoverProposed, nil
	}
	return HandoverIdle, nil
}

// IsAuthorized reports whether the caller holds administrative authority.
// It satisfies the AdminGate consumed by the vesting ledger.
func (e *Engine) IsAuthorized(caller [20]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	auth, err := e.ensureAuthority()
	if err != nil {
		return false
	}
	return !isZeroAddress(auth.Owner) && auth.Owner == caller
}

func (e *Engine) requireOwner(caller [20]byte) error {
	if !e.IsAuthorized(caller) {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) ensureAuthority() (*Authority, error) {
	auth, err := e.state.GetAuthority()
	if err != nil {
		return nil, err
	}
	if auth == nil {
		auth = &Authority{}
	}
	return auth, nil
}
