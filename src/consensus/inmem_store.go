package consensus

import (
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	cm "github.com/mosaicnetworks/streamlet/src/common"
)

// InmemStore implements the Store interface in memory. Blocks are kept in an
// LRU cache of cacheSize entries; rosters and participants are kept in full.
type InmemStore struct {
	cacheSize int

	mtx          sync.RWMutex
	blockCache   *lru.Cache
	rosters      map[uint64][]string
	participants map[string]*Participant
}

// NewInmemStore creates an InmemStore.
func NewInmemStore(cacheSize int) *InmemStore {
	blockCache, err := lru.New(cacheSize)
	if err != nil {
		panic(fmt.Sprintf("creating block cache: %v", err))
	}

	return &InmemStore{
		cacheSize:    cacheSize,
		blockCache:   blockCache,
		rosters:      make(map[uint64][]string),
		participants: make(map[string]*Participant),
	}
}

// CacheSize returns the size of the block cache.
func (s *InmemStore) CacheSize() int {
	return s.cacheSize
}

// GetBlock implements the Store interface.
func (s *InmemStore) GetBlock(id BlockID) (*BlockInfo, error) {
	res, ok := s.blockCache.Get(id)
	if !ok {
		return nil, cm.NewStoreErr("BlockCache", cm.KeyNotFound, id.String())
	}
	return res.(*BlockInfo).Clone(), nil
}

// SetBlock implements the Store interface.
func (s *InmemStore) SetBlock(info *BlockInfo) error {
	s.blockCache.Add(info.ID(), info.Clone())
	return nil
}

// Blocks implements the Store interface. It returns the cached blocks ordered
// by slot.
func (s *InmemStore) Blocks() ([]*BlockInfo, error) {
	var res []*BlockInfo
	for _, k := range s.blockCache.Keys() {
		if v, ok := s.blockCache.Peek(k); ok {
			res = append(res, v.(*BlockInfo).Clone())
		}
	}
	sortBlockInfos(res)
	return res, nil
}

// GetRoster implements the Store interface.
func (s *InmemStore) GetRoster(epoch uint64) ([]string, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	roster, ok := s.rosters[epoch]
	if !ok {
		return nil, cm.NewStoreErr("Rosters", cm.NoRoster, fmt.Sprint(epoch))
	}
	return append([]string(nil), roster...), nil
}

// SetRoster implements the Store interface.
func (s *InmemStore) SetRoster(epoch uint64, roster []string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.rosters[epoch] = append([]string(nil), roster...)
	return nil
}

// GetParticipant implements the Store interface.
func (s *InmemStore) GetParticipant(id string) (*Participant, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	p, ok := s.participants[id]
	if !ok {
		return nil, cm.NewStoreErr("Participants", cm.UnknownParticipant, id)
	}
	return p.Clone(), nil
}

// SetParticipant implements the Store interface.
func (s *InmemStore) SetParticipant(p *Participant) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.participants[p.ID()] = p.Clone()
	return nil
}

// Participants implements the Store interface. The result is sorted by
// identity.
func (s *InmemStore) Participants() ([]*Participant, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := make([]*Participant, 0, len(s.participants))
	for _, p := range s.participants {
		res = append(res, p.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID() < res[j].ID() })
	return res, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
