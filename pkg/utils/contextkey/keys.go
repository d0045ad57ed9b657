package contextkey

// key is a private type to avoid context key collisions across packages.
type key string

const (
	CallID      key = "call_id"
	Computation key = "computation"
	BatchID     key = "batch_id"
)
