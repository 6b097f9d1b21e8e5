package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Transaction status
const (
	TxStatusFailed  = 0
	TxStatusSuccess = 1
)

// Event is a structured log entry emitted by a contract during a successful
// transaction. Events of reverted transactions are discarded.
type Event struct {
	Address common.Address         `json:"address"`
	Name    string                 `json:"name"`
	Args    map[string]interface{} `json:"args"`
	Block   uint64                 `json:"blockNumber"`
	TxHash  common.Hash            `json:"transactionHash"`
}

// Receipt describes the outcome of one transaction.
type Receipt struct {
	TxHash    common.Hash    `json:"transactionHash"`
	Block     uint64         `json:"blockNumber"`
	Timestamp time.Time      `json:"timestamp"`
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Status    uint64         `json:"status"`
	Events    []Event        `json:"events"`
}

// Succeeded reports whether the transaction committed.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == TxStatusSuccess
}

// Event returns the first event with the given name.
func (r *Receipt) Event(name string) (Event, bool) {
	for _, ev := range r.Events {
		if ev.Name == name {
			return ev, true
		}
	}
	return Event{}, false
}

// EventsNamed returns every event with the given name in emission order.
func (r *Receipt) EventsNamed(name string) []Event {
	var out []Event
	for _, ev := range r.Events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}
