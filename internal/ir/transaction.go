package ir

// TransactionData is the delta of one committed store transaction.
// Seq is the commit sequence number assigned by the store.
type TransactionData struct {
	Seq     int64
	Added   []Fact
	Removed []Fact
}

// IsEmpty reports whether the transaction changed nothing.
func (t TransactionData) IsEmpty() bool {
	return len(t.Added) == 0 && len(t.Removed) == 0
}
