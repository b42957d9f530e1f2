package ledger

import "github.com/cory-johannsen/crypdoebucks/internal/game/buck"

// AttributeStore maps token ids to their combat attributes.
//
// AttributeStore is not safe for concurrent use; MemoryStore guards it.
type AttributeStore struct {
	bucks map[buck.TokenID]buck.Buck
}

// NewAttributeStore returns an empty store.
func NewAttributeStore() *AttributeStore {
	return &AttributeStore{bucks: make(map[buck.TokenID]buck.Buck)}
}

// Get returns the attributes of id.
//
// Postcondition: Returns buck.ErrNotFound if id was never minted.
func (s *AttributeStore) Get(id buck.TokenID) (buck.Buck, error) {
	b, ok := s.bucks[id]
	if !ok {
		return buck.Buck{}, buck.ErrNotFound
	}
	return b, nil
}

// Set overwrites the attributes of a minted id.
//
// Postcondition: Returns buck.ErrNotFound if id was never minted.
func (s *AttributeStore) Set(id buck.TokenID, b buck.Buck) error {
	if _, ok := s.bucks[id]; !ok {
		return buck.ErrNotFound
	}
	s.bucks[id] = b
	return nil
}

// Len returns the number of stored records.
func (s *AttributeStore) Len() int { return len(s.bucks) }

func (s *AttributeStore) insert(id buck.TokenID, b buck.Buck) {
	s.bucks[id] = b
}
