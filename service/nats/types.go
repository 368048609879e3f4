package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event kinds, used as the last token of the subject.
const (
	KindUpdated    = "updated"
	KindAnnotation = "annotation"
)

// ErrUnknownSubject is returned when a subject is not a ledger event subject.
var ErrUnknownSubject = errors.New("unknown ledger subject")

// LedgerUpdatedEvent is published to "ledger.{wallet_id}.updated" after a
// sync wrote transactions for a wallet. Consumers reload the wallet's
// transaction list.
type LedgerUpdatedEvent struct {
	WalletID string   `json:"wallet_id"`
	Written  int      `json:"written"`
	TxIDs    []string `json:"tx_ids,omitempty"`

	// LatestSlot is the highest slot among the written transactions.
	LatestSlot uint64 `json:"latest_slot"`

	SyncedAt    time.Time `json:"synced_at"`
	PublishedAt time.Time `json:"published_at"`
}

// AnnotationSavedEvent is published to "ledger.{wallet_id}.annotation" when
// a note is saved for a transaction/address pair.
type AnnotationSavedEvent struct {
	WalletID string `json:"wallet_id"`
	TxID     string `json:"tx_id"`
	Address  string `json:"address"`
	Note     string `json:"note"`

	SavedAt     time.Time `json:"saved_at"`
	PublishedAt time.Time `json:"published_at"`
}

// UpdatedSubject returns the subject of ledger updates for a wallet.
func UpdatedSubject(walletID string) string {
	return fmt.Sprintf("ledger.%s.%s", walletID, KindUpdated)
}

// AnnotationSubject returns the subject of saved annotations for a wallet.
func AnnotationSubject(walletID string) string {
	return fmt.Sprintf("ledger.%s.%s", walletID, KindAnnotation)
}

// WalletSubjects returns the filter matching every event of one wallet, or
// of all wallets when walletID is empty.
func WalletSubjects(walletID string) string {
	if walletID == "" {
		return StreamSubjects
	}
	return fmt.Sprintf("ledger.%s.*", walletID)
}

// ParseSubject splits a ledger subject into wallet id and event kind.
func ParseSubject(subject string) (walletID, kind string, err error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[0] != "ledger" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
	}
	switch parts[2] {
	case KindUpdated, KindAnnotation:
		return parts[1], parts[2], nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
	}
}

// DecodeEvent unmarshals a message by subject. It returns either a
// *LedgerUpdatedEvent or an *AnnotationSavedEvent.
func DecodeEvent(subject string, data []byte) (any, error) {
	_, kind, err := ParseSubject(subject)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindUpdated:
		var event LedgerUpdatedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ledger updated event: %w", err)
		}
		return &event, nil
	default:
		var event AnnotationSavedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal annotation saved event: %w", err)
		}
		return &event, nil
	}
}
