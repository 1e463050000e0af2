package memory

// journal records undo closures while at least one checkpoint is open. It cannot tell which
// caller made a change, so everything written while a checkpoint is open is undone by a revert.
// Callers hold the owning collaborator's lock.
type journal struct {
	entries []func()
	depth   int
}

func (j *journal) record(undo func()) {
	if j.depth > 0 {
		j.entries = append(j.entries, undo)
	}
}

func (j *journal) checkpoint() int {
	j.depth++
	return len(j.entries)
}

func (j *journal) revertTo(checkpoint int) {
	if j.depth == 0 {
		return
	}
	if checkpoint < 0 {
		checkpoint = 0
	}
	for i := len(j.entries) - 1; i >= checkpoint; i-- {
		j.entries[i]()
	}
	if checkpoint < len(j.entries) {
		j.entries = j.entries[:checkpoint]
	}
	j.release()
}

func (j *journal) commit() {
	if j.depth == 0 {
		return
	}
	j.release()
}

// Entries of an inner checkpoint stay until the outermost one closes so an outer revert
// still covers them.
func (j *journal) release() {
	j.depth--
	if j.depth == 0 {
		j.entries = nil
	}
}
