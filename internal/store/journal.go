// Package store keeps in-memory mirrors of the server-held cart and favorites.
//
// Mutations are applied locally first. A server-backed mutation is started
// with a Begin* call, which applies the change and records its inverse under
// an operation id. Commit forgets the inverse; Rollback applies it.
package store

import (
	"github.com/gofrs/uuid/v5"
)

// OpID tags a tentative change until it is committed or rolled back.
type OpID = uuid.UUID

// journal maps pending operations to their inverse. It is guarded by the
// owning collection's mutex.
type journal struct {
	pending map[OpID]func()
}

func (j *journal) begin(inverse func()) OpID {
	if j.pending == nil {
		j.pending = make(map[OpID]func())
	}
	id := uuid.Must(uuid.NewV4())
	j.pending[id] = inverse
	return id
}

// take removes the op and returns its inverse.
func (j *journal) take(id OpID) (func(), bool) {
	inv, ok := j.pending[id]
	if ok {
		delete(j.pending, id)
	}
	return inv, ok
}

func (j *journal) size() int { return len(j.pending) }
