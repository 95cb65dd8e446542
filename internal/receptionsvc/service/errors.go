package service

import "errors"

var (
	ErrVisitNotFound   = errors.New("visit not found")
	ErrAlreadyClaimed  = errors.New("visit already claimed")
	ErrNotClaimable    = errors.New("visit is not in a claimable state")
	ErrNotFinishable   = errors.New("visit is not in a finishable state")
	ErrPatientMismatch = errors.New("patient does not match this visit")
	ErrVaccineNotFound = errors.New("vaccine not found")
)
