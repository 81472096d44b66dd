package models

import "time"

// TransactionRecord is the wallet history row written after a confirmed
// ledger transaction.
type TransactionRecord struct {
	ID          string
	AccountID   string
	Kind        string
	Hash        string
	SourceAsset string
	DestAsset   string
	// Amount is the sent amount; for strict-receive it is the source
	// maximum that bounded the conversion.
	Amount      string
	DestAmount  string
	Destination string
	CreatedAt   time.Time
}
