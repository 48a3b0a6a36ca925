package bulk

// Split is the client-side auto-splitting helper spec.md section 4.6
// describes: it breaks ops into batches of at most maxOperations each,
// preserving order. It is consumed by a client (httpx.Client), never by
// the server core - the dispatcher and Processor always see one
// complete Request.
func Split(ops []*Op, maxOperations int) [][]*Op {
	if maxOperations <= 0 || len(ops) <= maxOperations {
		return [][]*Op{ops}
	}
	var batches [][]*Op
	for start := 0; start < len(ops); start += maxOperations {
		end := start + maxOperations
		if end > len(ops) {
			end = len(ops)
		}
		batches = append(batches, ops[start:end])
	}
	return batches
}
