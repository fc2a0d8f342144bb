package checkout

import "sync"

// shopperLocks serializes checkouts per shopper. Two checkouts for the
// same shopper take the same mutex for the whole load-validate-write-clear
// sequence; checkouts for different shoppers never contend.
type shopperLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newShopperLocks() *shopperLocks {
	return &shopperLocks{locks: make(map[string]*sync.Mutex)}
}

func (s *shopperLocks) lock(shopperID string) func() {
	s.mu.Lock()
	l, ok := s.locks[shopperID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[shopperID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
