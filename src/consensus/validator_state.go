package consensus

import (
	"crypto/ecdsa"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/streamlet/src/crypto"
	"github.com/mosaicnetworks/streamlet/src/crypto/keys"
	"github.com/mosaicnetworks/streamlet/src/net"
	"github.com/mosaicnetworks/streamlet/src/serial"
)

// DefaultSlotsPerEpoch is the epoch length used when the configuration does
// not set one.
const DefaultSlotsPerEpoch = 10

const (
	// maxHeldBlocks bounds the number of unknown blocks for which votes are
	// held.
	maxHeldBlocks = 256

	// maxHeldVotes bounds the number of votes held for one unknown block.
	maxHeldVotes = 256
)

// StateConfig holds the parameters of a ValidatorState.
type StateConfig struct {
	// Key signs votes and proposals. Nodes without a key only follow
	// finalized blocks.
	Key *ecdsa.PrivateKey

	SlotsPerEpoch uint64

	// GenesisTime is the timestamp of the genesis block. Every node of a
	// network must use the same value.
	GenesisTime time.Time

	// Genesis is the initial roster. Its participants join at epoch 0.
	Genesis []*Participant

	// SlotDuration locates the current epoch on the clock. When zero, the
	// current epoch is the one of the highest known block.
	SlotDuration time.Duration

	// Clock stamps proposed blocks. Defaults to time.Now.
	Clock func() time.Time

	Metrics *Metrics
}

// VoteResult describes the state changes caused by a vote or a proposal.
type VoteResult struct {
	// Accepted is set when the received vote or block was new.
	Accepted bool

	// Vote is the vote cast by the local node as a consequence, if any.
	Vote *Vote

	// Notarized lists the blocks that reached a quorum.
	Notarized []*BlockInfo

	// Finalized lists the newly finalized blocks, oldest first.
	Finalized []*BlockInfo
}

// Voted reports whether the local node cast a vote.
func (r *VoteResult) Voted() bool {
	return r != nil && r.Vote != nil
}

func (r *VoteResult) merge(other *VoteResult) {
	r.Notarized = append(r.Notarized, other.Notarized...)
	r.Finalized = append(r.Finalized, other.Finalized...)
	sortBlockInfos(r.Finalized)
}

// Stats is a summary of the chain view.
type Stats struct {
	Blocks            int
	Notarized         int
	Finalized         int
	LastFinalizedSlot uint64
	LastFinalizedID   string
	Participants      int
	Quarantined       int
}

// ValidatorState tallies votes, notarizes and finalizes blocks, and tracks
// the participants and their rosters.
//
// All the mutable state is guarded by one mutex. Signature checks run before
// it is taken.
type ValidatorState struct {
	key           *ecdsa.PrivateKey
	id            string
	slotsPerEpoch uint64
	genesis       BlockID
	genesisTime   time.Time
	slotDuration  time.Duration
	clock         func() time.Time

	store   Store
	metrics *Metrics
	logger  *logrus.Entry

	mtx           sync.Mutex
	participants  map[string]*Participant
	rosters       map[uint64][]string
	blocks        map[BlockID]*BlockInfo
	slots         map[uint64][]BlockID
	children      map[BlockID][]BlockID
	slotVotes     map[uint64]map[string]BlockID
	lastFinalized BlockID
	maxSlot       uint64

	// held maps unknown block ids to the votes received for them.
	held *lru.Cache

	finalizedSub *net.Subscriber[*BlockInfo]
}

// NewValidatorState creates a ValidatorState with the genesis block and the
// genesis roster. The genesis block is notarized and finalized.
func NewValidatorState(conf StateConfig, store Store, logger *logrus.Entry) (*ValidatorState, error) {
	if conf.SlotsPerEpoch == 0 {
		conf.SlotsPerEpoch = DefaultSlotsPerEpoch
	}
	if conf.Clock == nil {
		conf.Clock = time.Now
	}
	if conf.Metrics == nil {
		conf.Metrics = NewMetrics(nil)
	}

	held, err := lru.New(maxHeldBlocks)
	if err != nil {
		return nil, err
	}

	s := &ValidatorState{
		key:           conf.Key,
		slotsPerEpoch: conf.SlotsPerEpoch,
		genesisTime:   conf.GenesisTime,
		slotDuration:  conf.SlotDuration,
		clock:         conf.Clock,
		store:         store,
		metrics:       conf.Metrics,
		logger:        logger.WithField("prefix", "state"),
		participants:  make(map[string]*Participant),
		rosters:       make(map[uint64][]string),
		blocks:        make(map[BlockID]*BlockInfo),
		slots:         make(map[uint64][]BlockID),
		children:      make(map[BlockID][]BlockID),
		slotVotes:     make(map[uint64]map[string]BlockID),
		held:          held,
		finalizedSub:  net.NewSubscriber[*BlockInfo](),
	}
	if conf.Key != nil {
		s.id = identity(keys.FromPublicKey(&conf.Key.PublicKey))
	}

	for _, p := range conf.Genesis {
		g := p.Clone()
		g.Joined = 0
		s.participants[g.ID()] = g
		if _, err := store.GetParticipant(g.ID()); err == nil {
			continue
		}
		if err := store.SetParticipant(g); err != nil {
			return nil, err
		}
	}

	genesis := &BlockInfo{
		Block: Block{
			Slot:      0,
			Timestamp: conf.GenesisTime.Unix(),
		},
		Streamlet: StreamletMetadata{
			Notarized: true,
			Finalized: true,
		},
	}
	s.genesis = genesis.ID()
	s.lastFinalized = s.genesis
	s.index(genesis)
	if err := store.SetBlock(genesis); err != nil {
		return nil, err
	}

	s.metrics.Participants.Set(float64(len(s.participants)))

	return s, nil
}

// Bootstrap loads the participants and the blocks saved in the store and
// rebuilds the indices.
func (s *ValidatorState) Bootstrap() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	participants, err := s.store.Participants()
	if err != nil {
		return err
	}
	for _, p := range participants {
		s.participants[p.ID()] = p
	}

	blocks, err := s.store.Blocks()
	if err != nil {
		return err
	}
	for _, info := range blocks {
		id := info.ID()
		if _, ok := s.blocks[id]; ok {
			continue
		}
		if _, ok := s.blocks[info.Block.Parent]; !ok {
			s.logger.WithField("block", id).Warn("Skipping stored block with unknown parent")
			continue
		}
		s.index(info)
		if info.Streamlet.Finalized && info.Block.Slot > s.blocks[s.lastFinalized].Block.Slot {
			s.lastFinalized = id
		}
	}

	s.logger.WithFields(logrus.Fields{
		"participants":   len(s.participants),
		"blocks":         len(s.blocks),
		"last_finalized": s.blocks[s.lastFinalized].Block.Slot,
	}).Debug("Bootstrapped")

	s.metrics.Participants.Set(float64(len(s.participants)))
	s.metrics.LastFinalized.Set(float64(s.blocks[s.lastFinalized].Block.Slot))

	return nil
}

// ID returns the identity of the local node, or an empty string for nodes
// without a key.
func (s *ValidatorState) ID() string {
	return s.id
}

// Genesis returns the id of the genesis block.
func (s *ValidatorState) Genesis() BlockID {
	return s.genesis
}

// SlotsPerEpoch returns the epoch length.
func (s *ValidatorState) SlotsPerEpoch() uint64 {
	return s.slotsPerEpoch
}

// EpochOf returns the epoch of slot.
func (s *ValidatorState) EpochOf(slot uint64) uint64 {
	return slot / s.slotsPerEpoch
}

//------------------------------------------------------------------------------
// Votes

// ReceiveVote verifies vote and adds it to the tally of its block. A vote
// already counted is a no-op. When the vote leaves a notarized block in a slot
// the local node has not voted in, the local node votes for it.
//
// A vote for an unknown block is rejected with ErrUnknownBlock and held until
// the block is accepted.
func (s *ValidatorState) ReceiveVote(vote *Vote) (*VoteResult, error) {
	if err := vote.Verify(); err != nil {
		s.metrics.rejected(err)
		return nil, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	res := &VoteResult{}
	if err := s.receiveVote(vote, res); err != nil {
		s.metrics.rejected(err)
		return nil, err
	}
	return res, nil
}

func (s *ValidatorState) receiveVote(vote *Vote, res *VoteResult) error {
	voter := vote.VoterID()

	p, ok := s.participants[voter]
	if !ok {
		return ErrUnknownVoter
	}

	// The roster of a vote's epoch is only looked up once its block is known.
	info, ok := s.blocks[vote.Block]
	if !ok {
		s.holdVote(vote)
		return ErrUnknownBlock
	}
	if info.Block.Slot != vote.Slot {
		return ErrSlotMismatch
	}

	epoch := s.EpochOf(vote.Slot)
	if !s.inRoster(epoch, voter) {
		return ErrUnknownVoter
	}
	if p.IsQuarantined() {
		return ErrQuarantinedVoter
	}

	if prev, ok := s.slotVotes[vote.Slot][voter]; ok {
		if prev == vote.Block {
			return nil
		}
		return ErrEquivocation
	}

	s.recordVote(vote.Slot, voter, vote.Block)
	info.Streamlet.AddVote(*vote)
	res.Accepted = true
	s.metrics.VotesAccepted.Inc()

	if p.Voted == nil || *p.Voted < epoch {
		e := epoch
		p.Voted = &e
		s.saveParticipant(p)
	}

	if !info.Streamlet.Notarized && s.weight(info) >= s.quorum(epoch) {
		s.notarize(info, res)
	}
	s.saveBlock(info)

	if voter != s.id {
		s.castVote(vote.Slot, res)
	}

	return nil
}

func (s *ValidatorState) holdVote(vote *Vote) {
	var votes []*Vote
	if v, ok := s.held.Get(vote.Block); ok {
		votes = v.([]*Vote)
	}
	if len(votes) >= maxHeldVotes {
		return
	}
	for _, h := range votes {
		if h.VoterID() == vote.VoterID() {
			return
		}
	}
	s.held.Add(vote.Block, append(votes, vote))
}

// replayVotes applies the votes held for id.
func (s *ValidatorState) replayVotes(id BlockID, res *VoteResult) {
	v, ok := s.held.Peek(id)
	if !ok {
		return
	}
	s.held.Remove(id)

	for _, vote := range v.([]*Vote) {
		if err := s.receiveVote(vote, res); err != nil {
			s.logger.WithError(err).WithField("block", id).Debug("Dropping held vote")
		}
	}
}

func (s *ValidatorState) recordVote(slot uint64, voter string, block BlockID) {
	votes, ok := s.slotVotes[slot]
	if !ok {
		votes = make(map[string]BlockID)
		s.slotVotes[slot] = votes
	}
	votes[voter] = block
}

// weight counts the votes of info cast by active roster members.
func (s *ValidatorState) weight(info *BlockInfo) int {
	epoch := s.EpochOf(info.Block.Slot)
	w := 0
	for i := range info.Streamlet.Votes {
		voter := info.Streamlet.Votes[i].VoterID()
		if !s.inRoster(epoch, voter) {
			continue
		}
		if p, ok := s.participants[voter]; ok && !p.IsQuarantined() {
			w++
		}
	}
	return w
}

// quorum returns the number of votes that notarize a block of epoch. It is
// ceil(2R/3), R being the number of active roster members. An empty roster
// can never reach its quorum.
func (s *ValidatorState) quorum(epoch uint64) int {
	r := 0
	for _, id := range s.roster(epoch) {
		if p, ok := s.participants[id]; ok && !p.IsQuarantined() {
			r++
		}
	}
	if r == 0 {
		return 1 << 31
	}
	return (2*r + 2) / 3
}

// castVote votes for the best notarized block of slot, if the local node is
// eligible and has not voted in slot yet.
func (s *ValidatorState) castVote(slot uint64, res *VoteResult) {
	if res.Vote != nil || !s.canVote(slot) {
		return
	}

	candidate, ok := s.candidate(slot)
	if !ok {
		return
	}
	s.vote(candidate, slot, res)
}

func (s *ValidatorState) canVote(slot uint64) bool {
	if s.key == nil {
		return false
	}
	if !s.inRoster(s.EpochOf(slot), s.id) {
		return false
	}
	if p, ok := s.participants[s.id]; !ok || p.IsQuarantined() {
		return false
	}
	_, voted := s.slotVotes[slot][s.id]
	return !voted
}

// vote signs a vote for block and applies it.
func (s *ValidatorState) vote(block BlockID, slot uint64, res *VoteResult) {
	vote, err := NewVote(s.key, block, slot)
	if err != nil {
		s.logger.WithError(err).Error("Signing vote")
		return
	}

	sub := &VoteResult{}
	if err := s.receiveVote(vote, sub); err != nil {
		s.logger.WithError(err).WithField("block", block).Error("Applying own vote")
		return
	}

	s.metrics.VotesCast.Inc()
	res.Vote = vote
	res.merge(sub)
}

// candidate picks the notarized block of slot with the highest branch weight,
// the lowest id breaking ties.
func (s *ValidatorState) candidate(slot uint64) (BlockID, bool) {
	var (
		best   BlockID
		bestW  = -1
		picked bool
	)
	for _, id := range s.slots[slot] {
		info := s.blocks[id]
		if !info.Streamlet.Notarized {
			continue
		}
		w := s.branchWeight(id)
		if w > bestW || (w == bestW && id.Less(best)) {
			best, bestW, picked = id, w, true
		}
	}
	return best, picked
}

// branchWeight sums the votes of the notarized blocks between id and the
// closest finalized ancestor.
func (s *ValidatorState) branchWeight(id BlockID) int {
	w := 0
	for cur, ok := s.blocks[id]; ok && !cur.Streamlet.Finalized; cur, ok = s.blocks[cur.Block.Parent] {
		if cur.Streamlet.Notarized {
			w += len(cur.Streamlet.Votes)
		}
	}
	return w
}

// bestTip returns the notarized block with the highest branch weight among
// the descendants of the last finalized block, the lowest id breaking ties.
func (s *ValidatorState) bestTip() BlockID {
	best, bestW := s.lastFinalized, 0
	queue := append([]BlockID(nil), s.children[s.lastFinalized]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		info := s.blocks[id]
		if !info.Streamlet.Notarized {
			continue
		}
		w := s.branchWeight(id)
		if w > bestW || (w == bestW && id.Less(best)) {
			best, bestW = id, w
		}
		queue = append(queue, s.children[id]...)
	}
	return best
}

//------------------------------------------------------------------------------
// Notarization and finalization

func (s *ValidatorState) notarize(info *BlockInfo, res *VoteResult) {
	info.Streamlet.Notarized = true
	res.Notarized = append(res.Notarized, info.Clone())
	s.metrics.Notarized.Inc()

	s.logger.WithFields(logrus.Fields{
		"block": info.ID(),
		"slot":  info.Block.Slot,
		"votes": len(info.Streamlet.Votes),
	}).Debug("Block notarized")

	res.Finalized = append(res.Finalized, s.finalizeAround(info.ID())...)
	sortBlockInfos(res.Finalized)
}

// finalizeAround finalizes every run of three parent-linked notarized blocks
// with increasing slots that contains id. The genesis block anchors the chain
// but does not count in a run.
func (s *ValidatorState) finalizeAround(id BlockID) []*BlockInfo {
	var res []*BlockInfo

	for _, run := range s.runsThrough(id) {
		res = append(res, s.finalize(run[2])...)
	}

	return res
}

// runsThrough lists the runs of three notarized blocks in which id is the
// first, the middle or the last block.
func (s *ValidatorState) runsThrough(id BlockID) [][3]BlockID {
	var runs [][3]BlockID

	parent, hasParent := s.notarizedParent(id)
	if hasParent {
		if grand, ok := s.notarizedParent(parent); ok {
			runs = append(runs, [3]BlockID{grand, parent, id})
		}
		for _, c := range s.notarizedChildren(id) {
			runs = append(runs, [3]BlockID{parent, id, c})
		}
	}
	for _, c := range s.notarizedChildren(id) {
		for _, gc := range s.notarizedChildren(c) {
			runs = append(runs, [3]BlockID{id, c, gc})
		}
	}

	return runs
}

func (s *ValidatorState) notarizedParent(id BlockID) (BlockID, bool) {
	info := s.blocks[id]
	if id == s.genesis {
		return BlockID{}, false
	}
	parent, ok := s.blocks[info.Block.Parent]
	if !ok || info.Block.Parent == s.genesis || !parent.Streamlet.Notarized {
		return BlockID{}, false
	}
	if parent.Block.Slot >= info.Block.Slot {
		return BlockID{}, false
	}
	return info.Block.Parent, true
}

func (s *ValidatorState) notarizedChildren(id BlockID) []BlockID {
	info := s.blocks[id]
	var res []BlockID
	for _, c := range s.children[id] {
		child := s.blocks[c]
		if child.Streamlet.Notarized && child.Block.Slot > info.Block.Slot {
			res = append(res, c)
		}
	}
	return res
}

// finalize marks id and its unfinalized ancestors as finalized and returns
// them.
func (s *ValidatorState) finalize(id BlockID) []*BlockInfo {
	var res []*BlockInfo

	for cur, ok := s.blocks[id]; ok && !cur.Streamlet.Finalized; cur, ok = s.blocks[cur.Block.Parent] {
		cur.Streamlet.Finalized = true
		s.saveBlock(cur)
		res = append(res, cur.Clone())
	}

	for i := len(res) - 1; i >= 0; i-- {
		s.finalizedSub.Notify(res[i])
	}

	for _, info := range res {
		if info.Block.Slot > s.blocks[s.lastFinalized].Block.Slot {
			s.lastFinalized = info.ID()
		}
		s.logger.WithFields(logrus.Fields{
			"block": info.ID(),
			"slot":  info.Block.Slot,
		}).Info("Block finalized")
	}

	s.metrics.Finalized.Add(float64(len(res)))
	s.metrics.LastFinalized.Set(float64(s.blocks[s.lastFinalized].Block.Slot))

	return res
}

//------------------------------------------------------------------------------
// Blocks

// AcceptBlock adds block to the chain view. Its parent must be known and its
// slot must be greater than the parent's. Accepting a known block returns the
// stored copy.
func (s *ValidatorState) AcceptBlock(block *Block) (*BlockInfo, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	info, _, err := s.acceptBlock(block, &VoteResult{})
	if err != nil {
		return nil, err
	}
	return info.Clone(), nil
}

// acceptBlock adds a new block to the chain view and applies the votes held
// for it to res.
func (s *ValidatorState) acceptBlock(block *Block, res *VoteResult) (*BlockInfo, bool, error) {
	id := block.ID()
	if info, ok := s.blocks[id]; ok {
		return info, false, nil
	}

	parent, ok := s.blocks[block.Parent]
	if !ok {
		return nil, false, ErrUnknownParent
	}
	if block.Slot <= parent.Block.Slot {
		return nil, false, ErrSlotMismatch
	}

	info := &BlockInfo{Block: *block}
	s.index(info)
	s.saveBlock(info)

	s.logger.WithFields(logrus.Fields{
		"block":  id,
		"slot":   block.Slot,
		"parent": block.Parent,
		"txs":    len(block.Txs),
	}).Debug("Accepted block")

	s.replayVotes(id, res)

	return info, true, nil
}

func (s *ValidatorState) index(info *BlockInfo) {
	id := info.ID()
	s.blocks[id] = info
	s.slots[info.Block.Slot] = append(s.slots[info.Block.Slot], id)
	if info.Block.Slot > s.maxSlot {
		s.maxSlot = info.Block.Slot
	}
	if id != s.genesis {
		s.children[info.Block.Parent] = append(s.children[info.Block.Parent], id)
	}
	for i := range info.Streamlet.Votes {
		s.recordVote(info.Block.Slot, info.Streamlet.Votes[i].VoterID(), id)
	}
}

// Propose builds a block on the best notarized tip, signs it and votes for
// it. The local node must lead slot.
func (s *ValidatorState) Propose(slot uint64, txs [][]byte) (*BlockProposal, *VoteResult, error) {
	if s.key == nil {
		return nil, nil, ErrNoKey
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.leaderOf(slot) != s.id {
		return nil, nil, ErrNotLeader
	}

	tip := s.bestTip()
	if slot <= s.blocks[tip].Block.Slot {
		return nil, nil, ErrSlotMismatch
	}

	block := NewBlock(tip, slot, s.clock().Unix(), txs)
	for _, id := range s.roster(s.EpochOf(slot)) {
		if p, ok := s.participants[id]; ok {
			block.Metadata.Participants = append(block.Metadata.Participants, *p.Clone())
		}
	}
	if err := block.Sign(s.key); err != nil {
		return nil, nil, err
	}

	res := &VoteResult{}
	info, _, err := s.acceptBlock(block, res)
	if err != nil {
		return nil, nil, err
	}

	res.Accepted = true
	if s.canVote(slot) {
		s.vote(info.ID(), slot, res)
	}
	s.metrics.ProposalsIssued.Inc()

	s.logger.WithFields(logrus.Fields{
		"block":  info.ID(),
		"slot":   slot,
		"parent": tip,
	}).Info("Proposed block")

	return &BlockProposal{Block: *block}, res, nil
}

// ReceiveProposal checks that the proposal was signed by the slot leader and
// accepts its block. The local node votes for it when it extends the best
// notarized tip.
func (s *ValidatorState) ReceiveProposal(proposal *BlockProposal) (*VoteResult, error) {
	block := &proposal.Block

	s.mtx.Lock()
	leader, ok := s.participants[s.leaderOf(block.Slot)]
	if ok {
		leader = leader.Clone()
	}
	s.mtx.Unlock()
	if !ok {
		return nil, ErrNotLeader
	}

	if err := block.Verify(leader.PublicKey); err != nil {
		return nil, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	res := &VoteResult{}
	info, isNew, err := s.acceptBlock(block, res)
	if err != nil {
		return nil, err
	}

	res.Accepted = isNew
	if block.Parent == s.bestTip() && s.canVote(block.Slot) {
		s.vote(info.ID(), block.Slot, res)
	}
	return res, nil
}

// ReceiveFinalized applies a block announced on the sync network. The
// announcement must extend the local finalized chain and carry a quorum of
// valid votes from the block's roster, which notarizes the block locally.
// Finality then follows from the local rule: the block and its ancestors are
// finalized once they complete a run of three notarized blocks, so a sync
// peer sends the finalized chain in order.
//
// Accepted is set on the result when the block was newly notarized. The
// newly finalized blocks are listed oldest first.
func (s *ValidatorState) ReceiveFinalized(info *BlockInfo) (*VoteResult, error) {
	id := info.ID()

	var valid []Vote
	for i := range info.Streamlet.Votes {
		v := info.Streamlet.Votes[i]
		if v.Block != id || v.Slot != info.Block.Slot {
			continue
		}
		if err := v.Verify(); err != nil {
			continue
		}
		valid = append(valid, v)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	res := &VoteResult{}

	if known, ok := s.blocks[id]; ok && known.Streamlet.Notarized {
		return res, nil
	}

	parent, ok := s.blocks[info.Block.Parent]
	if !ok {
		return nil, ErrUnknownParent
	}
	if !s.extendsFinalized(parent) {
		return nil, ErrConflictingBlock
	}

	epoch := s.EpochOf(info.Block.Slot)
	voters := make(map[string]struct{})
	for i := range valid {
		voter := valid[i].VoterID()
		p, ok := s.participants[voter]
		if !ok || p.IsQuarantined() {
			continue
		}
		if s.inRoster(epoch, voter) {
			voters[voter] = struct{}{}
		}
	}
	if len(voters) < s.quorum(epoch) {
		return nil, ErrInsufficientVotes
	}

	local, _, err := s.acceptBlock(&info.Block, res)
	if err != nil {
		return nil, err
	}

	for i := range valid {
		voter := valid[i].VoterID()
		if _, ok := voters[voter]; !ok {
			continue
		}
		if _, ok := s.slotVotes[local.Block.Slot][voter]; ok {
			continue
		}
		s.recordVote(local.Block.Slot, voter, id)
		local.Streamlet.AddVote(valid[i])
	}

	if !local.Streamlet.Notarized {
		s.notarize(local, res)
	}
	s.saveBlock(local)

	res.Accepted = true
	return res, nil
}

// extendsFinalized reports whether the closest finalized ancestor of info,
// info included, is the last finalized block.
func (s *ValidatorState) extendsFinalized(info *BlockInfo) bool {
	cur := info
	for !cur.Streamlet.Finalized {
		parent, ok := s.blocks[cur.Block.Parent]
		if !ok {
			return false
		}
		cur = parent
	}
	return cur.ID() == s.lastFinalized
}

// Block returns a copy of the block with the given id.
func (s *ValidatorState) Block(id BlockID) (*BlockInfo, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	info, ok := s.blocks[id]
	if !ok {
		return nil, ErrUnknownBlock
	}
	return info.Clone(), nil
}

// LastFinalized returns a copy of the finalized block with the highest slot.
func (s *ValidatorState) LastFinalized() *BlockInfo {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.blocks[s.lastFinalized].Clone()
}

// SubscribeFinalized returns a subscription yielding every block finalized
// from now on, oldest first.
func (s *ValidatorState) SubscribeFinalized() *net.Subscription[*BlockInfo] {
	return s.finalizedSub.Subscribe()
}

// FinalizedChain returns the finalized blocks after genesis, oldest first.
func (s *ValidatorState) FinalizedChain() []*BlockInfo {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var res []*BlockInfo
	for id := s.lastFinalized; id != s.genesis; id = s.blocks[id].Block.Parent {
		res = append(res, s.blocks[id].Clone())
	}
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res
}

// BestTip returns the id of the block the next proposal extends.
func (s *ValidatorState) BestTip() BlockID {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.bestTip()
}

//------------------------------------------------------------------------------
// Participants

// AddParticipant records a participant announced by the network. It reports
// whether the participant was new.
func (s *ValidatorState) AddParticipant(p *Participant) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	id := p.ID()
	if _, ok := s.participants[id]; ok {
		return false
	}

	np := p.Clone()
	s.participants[id] = np
	s.saveParticipant(np)
	s.metrics.Participants.Set(float64(len(s.participants)))

	s.logger.WithFields(logrus.Fields{
		"address": p.Address,
		"joined":  p.Joined,
	}).Info("New participant")

	return true
}

// Participant returns a copy of the participant with the given identity.
func (s *ValidatorState) Participant(id string) (*Participant, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	p, ok := s.participants[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Participants returns a copy of the known participants, sorted by identity.
func (s *ValidatorState) Participants() []*Participant {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	res := make([]*Participant, 0, len(s.participants))
	for _, p := range s.participants {
		res = append(res, p.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID() < res[j].ID() })
	return res
}

// Roster returns the roster of epoch.
func (s *ValidatorState) Roster(epoch uint64) []string {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return append([]string(nil), s.roster(epoch)...)
}

// ClearQuarantine lifts the quarantine of the participant that signed the
// keepalive. It reports whether a quarantine was lifted.
func (s *ValidatorState) ClearQuarantine(k *KeepAlive) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var p *Participant
	for _, candidate := range s.participants {
		if candidate.Address == k.Address {
			p = candidate
			break
		}
	}
	if p == nil {
		return false, ErrUnknownParticipant
	}

	if err := k.Verify(p.PublicKey); err != nil {
		return false, err
	}

	if !p.IsQuarantined() {
		return false, nil
	}

	p.Quarantined = nil
	s.saveParticipant(p)
	s.updateQuarantineGauge()

	s.logger.WithField("address", p.Address).Info("Quarantine lifted")

	return true, nil
}

// UpdateQuarantine quarantines the participants that joined at least two
// epochs before epoch and did not vote in the previous epoch. It returns the
// newly quarantined participants.
func (s *ValidatorState) UpdateQuarantine(epoch uint64) []*Participant {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var res []*Participant
	for _, p := range s.participants {
		if p.IsQuarantined() || p.Joined+2 > epoch {
			continue
		}
		if p.Voted != nil && *p.Voted >= epoch-1 {
			continue
		}

		e := epoch
		p.Quarantined = &e
		s.saveParticipant(p)
		res = append(res, p.Clone())

		s.logger.WithFields(logrus.Fields{
			"address": p.Address,
			"epoch":   epoch,
		}).Info("Participant quarantined")
	}
	s.updateQuarantineGauge()

	sort.Slice(res, func(i, j int) bool { return res[i].ID() < res[j].ID() })
	return res
}

func (s *ValidatorState) updateQuarantineGauge() {
	n := 0
	for _, p := range s.participants {
		if p.IsQuarantined() {
			n++
		}
	}
	s.metrics.Quarantined.Set(float64(n))
}

// LeaderOf returns the identity of the leader of slot: the active roster
// member at index blake3(slot) mod R. It returns an empty string when the
// roster has no active member.
func (s *ValidatorState) LeaderOf(slot uint64) string {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.leaderOf(slot)
}

func (s *ValidatorState) leaderOf(slot uint64) string {
	var active []string
	for _, id := range s.roster(s.EpochOf(slot)) {
		if p, ok := s.participants[id]; ok && !p.IsQuarantined() {
			active = append(active, id)
		}
	}
	if len(active) == 0 {
		return ""
	}

	h := crypto.Blake3(slotBytes(slot))
	n := serial.NewDecoder(h[:8]).ReadU64()
	return active[n%uint64(len(active))]
}

// roster returns the roster of epoch, taking its snapshot on first use.
// Epochs after the next one are computed but not snapshotted, since their
// participants may still be announced.
func (s *ValidatorState) roster(epoch uint64) []string {
	if r, ok := s.rosters[epoch]; ok {
		return r
	}

	if r, err := s.store.GetRoster(epoch); err == nil && len(r) > 0 {
		s.rosters[epoch] = r
		return r
	}

	var r []string
	for id, p := range s.participants {
		if p.Joined <= epoch {
			r = append(r, id)
		}
	}
	if len(r) == 0 {
		return nil
	}
	sort.Strings(r)

	if epoch > s.currentEpoch()+1 {
		return r
	}

	s.rosters[epoch] = r
	if err := s.store.SetRoster(epoch, r); err != nil {
		s.logger.WithError(err).WithField("epoch", epoch).Error("Saving roster")
	}
	return r
}

// currentEpoch is the epoch of the clock when the slot duration is known, or
// the epoch of the highest known block.
func (s *ValidatorState) currentEpoch() uint64 {
	if s.slotDuration <= 0 {
		return s.EpochOf(s.maxSlot)
	}
	elapsed := s.clock().Sub(s.genesisTime)
	if elapsed < 0 {
		return 0
	}
	return s.EpochOf(uint64(elapsed / s.slotDuration))
}

func (s *ValidatorState) inRoster(epoch uint64, id string) bool {
	r := s.roster(epoch)
	i := sort.SearchStrings(r, id)
	return i < len(r) && r[i] == id
}

//------------------------------------------------------------------------------
// Stats

// Stats returns a summary of the chain view.
func (s *ValidatorState) Stats() Stats {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	st := Stats{
		Blocks:            len(s.blocks),
		LastFinalizedSlot: s.blocks[s.lastFinalized].Block.Slot,
		LastFinalizedID:   s.lastFinalized.String(),
		Participants:      len(s.participants),
	}
	for _, info := range s.blocks {
		if info.Streamlet.Notarized {
			st.Notarized++
		}
		if info.Streamlet.Finalized {
			st.Finalized++
		}
	}
	for _, p := range s.participants {
		if p.IsQuarantined() {
			st.Quarantined++
		}
	}
	return st
}

func (s *ValidatorState) saveBlock(info *BlockInfo) {
	if err := s.store.SetBlock(info); err != nil {
		s.logger.WithError(err).WithField("block", info.ID()).Error("Saving block")
	}
}

func (s *ValidatorState) saveParticipant(p *Participant) {
	if err := s.store.SetParticipant(p); err != nil {
		s.logger.WithError(err).WithField("participant", p.Address).Error("Saving participant")
	}
}
