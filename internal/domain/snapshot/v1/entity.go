package snapshotv1

// BookOrder is one resting order captured in a snapshot.
type BookOrder struct {
	OrderID   string `json:"orderID"`
	UserID    string `json:"userID"`
	Side      string `json:"side"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Remaining int64  `json:"remaining"`
	Sequence  int64  `json:"sequence"`
	CreatedAt int64  `json:"createdAt"` // unix nanoseconds
}

// BookSnapshot captures the full resting state of one symbol's book.
type BookSnapshot struct {
	Symbol   string      `json:"symbol"`
	Sequence int64       `json:"sequence"` // last sequence number handed out
	Orders   []BookOrder `json:"orders"`
}

// Snapshot captures the engine state needed to resume after a restart:
// every symbol's book plus the intake stream offset the books reflect.
type Snapshot struct {
	OrderOffset int64          `json:"orderOffset"`
	Books       []BookSnapshot `json:"books"`
}
