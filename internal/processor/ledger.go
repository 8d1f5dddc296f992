package processor

import (
	"sync"

	"github.com/atmx/bet-processor/internal/model"
)

// ledger maps bet id to the last accepted status. Entries are created on the
// first accepted OPEN and overwritten only by a further accepted transition;
// they are never deleted.
//
// Different ids proceed in parallel. Racing updates to the same id are not
// serialised beyond sync.Map itself, so the last write wins.
type ledger struct {
	m sync.Map // int -> model.Status
}

func (l *ledger) get(id int) (model.Status, bool) {
	v, ok := l.m.Load(id)
	if !ok {
		return "", false
	}
	return v.(model.Status), true
}

func (l *ledger) set(id int, s model.Status) {
	l.m.Store(id, s)
}
