package domain

import "errors"

var (
	ErrPeerNotFound    = errors.New("peer not found")
	ErrIdentityTaken   = errors.New("identity already taken")
	ErrIdentityMissing = errors.New("no identity bound to account")
	ErrInvalidPeerID   = errors.New("peer ID must be exactly 12 digits")
	ErrSelfConnect     = errors.New("cannot connect to own peer ID")
	ErrPeerOffline     = errors.New("peer is offline")
	ErrSessionActive   = errors.New("another session is already active")
	ErrNoSession       = errors.New("no active session")
	ErrNoPendingOffer  = errors.New("no pending offer")
	ErrChannelClosed   = errors.New("data channel is not open")
	ErrMailboxEmpty    = errors.New("mailbox is empty")
)
