package consensus

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mosaicnetworks/streamlet/src/common"
	"github.com/mosaicnetworks/streamlet/src/crypto/keys"
)

var testGenesisTime = time.Unix(1600000000, 0)

type testNode struct {
	key *ecdsa.PrivateKey
	p   *Participant
}

func newTestNodes(t testing.TB, n int) []testNode {
	nodes := make([]testNode, n)
	for i := range nodes {
		key, err := keys.GenerateECDSAKey()
		require.NoError(t, err)
		nodes[i] = testNode{
			key: key,
			p:   NewParticipant(&key.PublicKey, fmt.Sprintf("node%d:8000", i), 0),
		}
	}
	return nodes
}

func genesisOf(nodes []testNode) []*Participant {
	res := make([]*Participant, len(nodes))
	for i, n := range nodes {
		res[i] = n.p
	}
	return res
}

func newTestStateWithStore(t testing.TB, key *ecdsa.PrivateKey, nodes []testNode, store Store) *ValidatorState {
	s, err := NewValidatorState(StateConfig{
		Key:           key,
		SlotsPerEpoch: 10,
		GenesisTime:   testGenesisTime,
		Genesis:       genesisOf(nodes),
		Clock:         func() time.Time { return testGenesisTime.Add(time.Minute) },
	}, store, common.NewTestEntry(t, common.TestLogLevel))
	require.NoError(t, err)
	return s
}

func newTestState(t testing.TB, key *ecdsa.PrivateKey, nodes []testNode) *ValidatorState {
	return newTestStateWithStore(t, key, nodes, NewInmemStore(100))
}

func testBlock(parent BlockID, slot uint64, tag string) *Block {
	return NewBlock(parent, slot, testGenesisTime.Unix()+int64(slot), [][]byte{[]byte(tag)})
}

func acceptTestBlock(t testing.TB, s *ValidatorState, parent BlockID, slot uint64, tag string) BlockID {
	info, err := s.AcceptBlock(testBlock(parent, slot, tag))
	require.NoError(t, err)
	return info.ID()
}

func mustVote(t testing.TB, key *ecdsa.PrivateKey, block BlockID, slot uint64) *Vote {
	v, err := NewVote(key, block, slot)
	require.NoError(t, err)
	return v
}

func ids(infos []*BlockInfo) []BlockID {
	res := make([]BlockID, len(infos))
	for i, info := range infos {
		res[i] = info.ID()
	}
	return res
}

// notarizeWith sends the votes of voters for block and returns the result of
// the last one.
func notarizeWith(t *testing.T, s *ValidatorState, voters []testNode, block BlockID, slot uint64) *VoteResult {
	var res *VoteResult
	for _, n := range voters {
		var err error
		res, err = s.ReceiveVote(mustVote(t, n.key, block, slot))
		require.NoError(t, err)
	}
	return res
}

func TestScenarioThreeNodes(t *testing.T) {
	nodes := newTestNodes(t, 3)
	a, b, c := nodes[0], nodes[1], nodes[2]

	s := newTestState(t, c.key, nodes)
	x := acceptTestBlock(t, s, s.Genesis(), 1, "x")

	res, err := s.ReceiveVote(mustVote(t, a.key, x, 1))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Empty(t, res.Notarized)
	assert.False(t, res.Voted())

	res, err = s.ReceiveVote(mustVote(t, b.key, x, 1))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, []BlockID{x}, ids(res.Notarized))
	require.True(t, res.Voted())
	assert.Equal(t, c.p.ID(), res.Vote.VoterID())
	assert.Equal(t, x, res.Vote.Block)

	res, err = s.ReceiveVote(res.Vote)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.False(t, res.Voted())
	assert.Empty(t, res.Notarized)

	info, err := s.Block(x)
	require.NoError(t, err)
	assert.Len(t, info.Streamlet.Votes, 3)
	assert.True(t, info.Streamlet.Notarized)
}

func TestQuorumBoundary(t *testing.T) {
	for r := 1; r <= 7; r++ {
		r := r
		t.Run(fmt.Sprintf("R=%d", r), func(t *testing.T) {
			nodes := newTestNodes(t, r)
			s := newTestState(t, nil, nodes)
			x := acceptTestBlock(t, s, s.Genesis(), 1, "x")

			want := int(math.Ceil(2 * float64(r) / 3))
			for i, n := range nodes {
				res, err := s.ReceiveVote(mustVote(t, n.key, x, 1))
				require.NoError(t, err)
				assert.Equal(t, i+1 == want, len(res.Notarized) == 1, "after %d votes", i+1)
			}
		})
	}
}

func TestNoDoubleCounting(t *testing.T) {
	nodes := newTestNodes(t, 4)
	s := newTestState(t, nil, nodes)
	x := acceptTestBlock(t, s, s.Genesis(), 1, "x")

	vote := mustVote(t, nodes[0].key, x, 1)
	for i := 0; i < 3; i++ {
		_, err := s.ReceiveVote(vote)
		require.NoError(t, err)
	}
	_, err := s.ReceiveVote(mustVote(t, nodes[0].key, x, 1))
	require.NoError(t, err)

	info, err := s.Block(x)
	require.NoError(t, err)
	assert.Len(t, info.Streamlet.Votes, 1)
	assert.False(t, info.Streamlet.Notarized)
}

func TestEquivocationRejected(t *testing.T) {
	nodes := newTestNodes(t, 3)
	s := newTestState(t, nil, nodes)
	x := acceptTestBlock(t, s, s.Genesis(), 1, "x")
	y := acceptTestBlock(t, s, s.Genesis(), 1, "y")

	_, err := s.ReceiveVote(mustVote(t, nodes[0].key, x, 1))
	require.NoError(t, err)

	_, err = s.ReceiveVote(mustVote(t, nodes[0].key, y, 1))
	assert.ErrorIs(t, err, ErrEquivocation)

	xi, err := s.Block(x)
	require.NoError(t, err)
	assert.Len(t, xi.Streamlet.Votes, 1)

	yi, err := s.Block(y)
	require.NoError(t, err)
	assert.Empty(t, yi.Streamlet.Votes)
}

func TestVoteRejections(t *testing.T) {
	nodes := newTestNodes(t, 3)
	outsider := newTestNodes(t, 1)[0]
	s := newTestState(t, nil, nodes)
	x := acceptTestBlock(t, s, s.Genesis(), 1, "x")

	_, err := s.ReceiveVote(mustVote(t, outsider.key, x, 1))
	assert.ErrorIs(t, err, ErrUnknownVoter)

	_, err = s.ReceiveVote(mustVote(t, nodes[0].key, BlockID{1}, 1))
	assert.ErrorIs(t, err, ErrUnknownBlock)

	_, err = s.ReceiveVote(mustVote(t, nodes[0].key, x, 2))
	assert.ErrorIs(t, err, ErrSlotMismatch)

	forged := mustVote(t, nodes[1].key, x, 1)
	forged.Voter = nodes[0].p.PublicKey
	_, err = s.ReceiveVote(forged)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	info, err := s.Block(x)
	require.NoError(t, err)
	assert.Empty(t, info.Streamlet.Votes)
}

func TestFinalizationChain(t *testing.T) {
	nodes := newTestNodes(t, 3)
	s := newTestState(t, nil, nodes)
	sub := s.SubscribeFinalized()

	b1 := acceptTestBlock(t, s, s.Genesis(), 1, "b1")
	b2 := acceptTestBlock(t, s, b1, 2, "b2")
	b3 := acceptTestBlock(t, s, b2, 3, "b3")

	assert.Empty(t, notarizeWith(t, s, nodes[:2], b1, 1).Finalized)
	assert.Empty(t, notarizeWith(t, s, nodes[:2], b2, 2).Finalized)

	res := notarizeWith(t, s, nodes[:2], b3, 3)
	assert.Equal(t, []BlockID{b1, b2, b3}, ids(res.Finalized))

	// later votes never return them again
	res, err := s.ReceiveVote(mustVote(t, nodes[2].key, b3, 3))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Empty(t, res.Finalized)

	for _, id := range []BlockID{b1, b2, b3} {
		info, err := s.Block(id)
		require.NoError(t, err)
		assert.True(t, info.Streamlet.Notarized)
		assert.True(t, info.Streamlet.Finalized)
	}
	assert.Equal(t, b3, s.LastFinalized().ID())

	b4 := acceptTestBlock(t, s, b3, 4, "b4")
	res = notarizeWith(t, s, nodes[:2], b4, 4)
	assert.Equal(t, []BlockID{b4}, ids(res.Finalized))
	assert.Len(t, s.FinalizedChain(), 4)

	// subscribers see every finalized block once, oldest first
	require.Equal(t, 4, sub.Pending())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, want := range []BlockID{b1, b2, b3, b4} {
		info, err := sub.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, info.ID())
	}
}

func TestFinalizationOutOfOrder(t *testing.T) {
	nodes := newTestNodes(t, 3)
	s := newTestState(t, nil, nodes)

	b1 := acceptTestBlock(t, s, s.Genesis(), 1, "b1")
	b2 := acceptTestBlock(t, s, b1, 2, "b2")
	b3 := acceptTestBlock(t, s, b2, 3, "b3")

	assert.Empty(t, notarizeWith(t, s, nodes[:2], b3, 3).Finalized)
	assert.Empty(t, notarizeWith(t, s, nodes[:2], b1, 1).Finalized)

	res := notarizeWith(t, s, nodes[:2], b2, 2)
	assert.Equal(t, []BlockID{b1, b2, b3}, ids(res.Finalized))
}

func TestForkNotFinalized(t *testing.T) {
	nodes := newTestNodes(t, 3)
	s := newTestState(t, nil, nodes)

	b1 := acceptTestBlock(t, s, s.Genesis(), 1, "b1")
	b2 := acceptTestBlock(t, s, b1, 2, "b2")
	f3 := acceptTestBlock(t, s, b1, 3, "f3")

	notarizeWith(t, s, nodes[:2], b1, 1)
	notarizeWith(t, s, nodes[:2], b2, 2)
	res := notarizeWith(t, s, nodes[:2], f3, 3)
	assert.Empty(t, res.Finalized)
	assert.Equal(t, s.Genesis(), s.LastFinalized().ID())
}

func TestVoteOrderIndependence(t *testing.T) {
	nodes := newTestNodes(t, 4)
	ref := newTestState(t, nil, nodes)

	b1 := acceptTestBlock(t, ref, ref.Genesis(), 1, "b1")
	b2 := acceptTestBlock(t, ref, b1, 2, "b2")
	f2 := acceptTestBlock(t, ref, b1, 2, "f2")
	b3 := acceptTestBlock(t, ref, b2, 3, "b3")

	var votes []*Vote
	for _, n := range nodes {
		votes = append(votes, mustVote(t, n.key, b1, 1))
	}
	for _, n := range nodes[:3] {
		votes = append(votes, mustVote(t, n.key, b2, 2))
	}
	votes = append(votes, mustVote(t, nodes[3].key, f2, 2))
	for _, n := range nodes[1:] {
		votes = append(votes, mustVote(t, n.key, b3, 3))
	}

	type flags struct{ notarized, finalized bool }
	want := map[BlockID]flags{
		b1: {true, true},
		b2: {true, true},
		f2: {false, false},
		b3: {true, true},
	}

	rapid.Check(t, func(rt *rapid.T) {
		perm := rapid.Permutation(votes).Draw(rt, "votes")

		s := newTestState(t, nil, nodes)
		acceptTestBlock(t, s, s.Genesis(), 1, "b1")
		acceptTestBlock(t, s, b1, 2, "b2")
		acceptTestBlock(t, s, b1, 2, "f2")
		acceptTestBlock(t, s, b2, 3, "b3")

		finalized := make(map[BlockID]int)
		for _, v := range perm {
			res, err := s.ReceiveVote(v)
			if err != nil {
				rt.Fatalf("vote rejected: %v", err)
			}
			for _, info := range res.Finalized {
				finalized[info.ID()]++
			}
		}

		for id, f := range want {
			info, err := s.Block(id)
			if err != nil {
				rt.Fatal(err)
			}
			got := flags{info.Streamlet.Notarized, info.Streamlet.Finalized}
			if got != f {
				rt.Fatalf("block %s: got %+v, want %+v", id, got, f)
			}
			if f.finalized && finalized[id] != 1 {
				rt.Fatalf("block %s returned %d times as finalized", id, finalized[id])
			}
		}
	})
}

func TestProposeSingleNode(t *testing.T) {
	nodes := newTestNodes(t, 1)
	s := newTestState(t, nodes[0].key, nodes)

	var chain []BlockID
	var res *VoteResult
	for slot := uint64(1); slot <= 3; slot++ {
		assert.Equal(t, nodes[0].p.ID(), s.LeaderOf(slot))

		proposal, r, err := s.Propose(slot, [][]byte{[]byte("tx")})
		require.NoError(t, err)
		require.True(t, r.Voted())
		assert.Len(t, r.Notarized, 1)
		assert.NoError(t, proposal.Block.Verify(nodes[0].p.PublicKey))
		assert.Equal(t, testGenesisTime.Add(time.Minute).Unix(), proposal.Block.Timestamp)
		assert.Len(t, proposal.Block.Metadata.Participants, 1)

		if len(chain) > 0 {
			assert.Equal(t, chain[len(chain)-1], proposal.Block.Parent)
		}
		chain = append(chain, proposal.Block.ID())
		res = r
	}

	assert.Equal(t, chain, ids(res.Finalized))

	_, _, err := s.Propose(3, nil)
	assert.ErrorIs(t, err, ErrSlotMismatch)
}

func TestProposeNotLeader(t *testing.T) {
	nodes := newTestNodes(t, 2)
	s := newTestState(t, nodes[0].key, nodes)

	for slot := uint64(1); slot < 50; slot++ {
		if s.LeaderOf(slot) == nodes[0].p.ID() {
			continue
		}
		_, _, err := s.Propose(slot, nil)
		assert.ErrorIs(t, err, ErrNotLeader)
		return
	}
	t.Fatal("no slot led by the other node")
}

func TestProposeWithoutKey(t *testing.T) {
	nodes := newTestNodes(t, 1)
	s := newTestState(t, nil, nodes)

	_, _, err := s.Propose(1, nil)
	assert.ErrorIs(t, err, ErrNoKey)
}

// leaderSlot returns the first slot led by n.
func leaderSlot(t *testing.T, s *ValidatorState, n testNode) uint64 {
	for slot := uint64(1); slot < 100; slot++ {
		if s.LeaderOf(slot) == n.p.ID() {
			return slot
		}
	}
	t.Fatal("node leads no slot")
	return 0
}

func TestReceiveProposal(t *testing.T) {
	nodes := newTestNodes(t, 2)
	a, b := nodes[0], nodes[1]
	sa := newTestState(t, a.key, nodes)
	sb := newTestState(t, b.key, nodes)

	slot := leaderSlot(t, sa, a)
	proposal, _, err := sa.Propose(slot, nil)
	require.NoError(t, err)

	res, err := sb.ReceiveProposal(proposal)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	require.True(t, res.Voted())
	assert.Equal(t, proposal.Block.ID(), res.Vote.Block)

	res, err = sb.ReceiveProposal(proposal)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.False(t, res.Voted())

	// b's vote completes the quorum of two on a
	voteRes, err := sa.ReceiveVote(mustVote(t, b.key, proposal.Block.ID(), slot))
	require.NoError(t, err)
	assert.Equal(t, []BlockID{proposal.Block.ID()}, ids(voteRes.Notarized))

	tampered := &BlockProposal{Block: proposal.Block}
	tampered.Block.Timestamp++
	_, err = sb.ReceiveProposal(tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestReceiveFinalized(t *testing.T) {
	nodes := newTestNodes(t, 1)
	leader := newTestState(t, nodes[0].key, nodes)
	follower := newTestState(t, nil, nodes)

	for slot := uint64(1); slot <= 3; slot++ {
		_, _, err := leader.Propose(slot, nil)
		require.NoError(t, err)
	}
	chain := leader.FinalizedChain()
	require.Len(t, chain, 3)

	stripped := chain[0].Clone()
	stripped.Streamlet.Votes = nil
	_, err := follower.ReceiveFinalized(stripped)
	assert.ErrorIs(t, err, ErrInsufficientVotes)

	_, err = follower.ReceiveFinalized(chain[1])
	assert.ErrorIs(t, err, ErrUnknownParent)

	// the first two blocks are only notarized
	for _, info := range chain[:2] {
		res, err := follower.ReceiveFinalized(info)
		require.NoError(t, err)
		assert.True(t, res.Accepted)
		assert.Empty(t, res.Finalized)
	}
	assert.Equal(t, follower.Genesis(), follower.LastFinalized().ID())

	res, err := follower.ReceiveFinalized(chain[2])
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, ids(chain), ids(res.Finalized))

	res, err = follower.ReceiveFinalized(chain[2])
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Empty(t, res.Finalized)
	assert.Equal(t, chain[2].ID(), follower.LastFinalized().ID())
}

// announced returns the announcement of block carrying the votes of voters.
func announced(t *testing.T, block *Block, voters []testNode) *BlockInfo {
	info := &BlockInfo{Block: *block}
	for _, n := range voters {
		info.Streamlet.AddVote(*mustVote(t, n.key, block.ID(), block.Slot))
	}
	return info
}

func TestReceiveFinalizedRejectsForks(t *testing.T) {
	nodes := newTestNodes(t, 3)
	a, b := nodes[0], nodes[1]
	s := newTestState(t, nil, nodes)

	x1 := acceptTestBlock(t, s, s.Genesis(), 1, "x1")
	notarizeWith(t, s, nodes[:2], x1, 1)
	x2 := acceptTestBlock(t, s, x1, 2, "x2")
	notarizeWith(t, s, nodes[:2], x2, 2)
	x3 := acceptTestBlock(t, s, x2, 3, "x3")
	res := notarizeWith(t, s, nodes[:2], x3, 3)
	require.Equal(t, []BlockID{x1, x2, x3}, ids(res.Finalized))

	// a notarized block forking off genesis
	y := testBlock(s.Genesis(), 4, "y")
	_, err := s.ReceiveFinalized(announced(t, y, []testNode{a, b}))
	assert.ErrorIs(t, err, ErrConflictingBlock)

	// a notarized block forking off a finalized block other than the last
	z := testBlock(x2, 5, "z")
	_, err = s.ReceiveFinalized(announced(t, z, []testNode{a, b}))
	assert.ErrorIs(t, err, ErrConflictingBlock)

	for _, id := range []BlockID{y.ID(), z.ID()} {
		_, err := s.Block(id)
		assert.ErrorIs(t, err, ErrUnknownBlock)
	}
	assert.Equal(t, x3, s.LastFinalized().ID())
	assert.Equal(t, []BlockID{x1, x2, x3}, ids(s.FinalizedChain()))

	// an extension of the finalized chain completes the run x2, x3, w
	w := testBlock(x3, 6, "w")
	res, err = s.ReceiveFinalized(announced(t, w, []testNode{a, b}))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, []BlockID{w.ID()}, ids(res.Finalized))
	assert.Equal(t, w.ID(), s.LastFinalized().ID())
}

func TestQuarantine(t *testing.T) {
	nodes := newTestNodes(t, 3)
	s := newTestState(t, nil, nodes)

	// nodes[0] votes in epoch 1
	x := acceptTestBlock(t, s, s.Genesis(), 10, "x")
	_, err := s.ReceiveVote(mustVote(t, nodes[0].key, x, 10))
	require.NoError(t, err)

	assert.Empty(t, s.UpdateQuarantine(1), "participants are not quarantined before their second epoch")

	quarantined := s.UpdateQuarantine(2)
	require.Len(t, quarantined, 2)
	for _, p := range quarantined {
		assert.NotEqual(t, nodes[0].p.ID(), p.ID())
		assert.Equal(t, uint64(2), *p.Quarantined)
	}
	assert.Equal(t, 2, s.Stats().Quarantined)

	y := acceptTestBlock(t, s, x, 11, "y")
	_, err = s.ReceiveVote(mustVote(t, nodes[1].key, y, 11))
	assert.ErrorIs(t, err, ErrQuarantinedVoter)

	// with two members quarantined the remaining one is a quorum
	res, err := s.ReceiveVote(mustVote(t, nodes[0].key, y, 11))
	require.NoError(t, err)
	assert.Len(t, res.Notarized, 1)

	ka, err := NewKeepAlive(nodes[1].key, nodes[1].p.Address)
	require.NoError(t, err)

	cleared, err := s.ClearQuarantine(ka)
	require.NoError(t, err)
	assert.True(t, cleared)

	cleared, err = s.ClearQuarantine(ka)
	require.NoError(t, err)
	assert.False(t, cleared)

	forged, err := NewKeepAlive(nodes[1].key, nodes[2].p.Address)
	require.NoError(t, err)
	_, err = s.ClearQuarantine(forged)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	unknown, err := NewKeepAlive(nodes[1].key, "nowhere:1")
	require.NoError(t, err)
	_, err = s.ClearQuarantine(unknown)
	assert.ErrorIs(t, err, ErrUnknownParticipant)

	assert.Equal(t, 1, s.Stats().Quarantined)
}

func TestRosterSnapshot(t *testing.T) {
	nodes := newTestNodes(t, 2)
	late := newTestNodes(t, 1)[0]
	s := newTestState(t, nil, nodes)

	assert.Len(t, s.Roster(0), 2)

	p := late.p.Clone()
	p.Joined = 1
	assert.True(t, s.AddParticipant(p))
	assert.False(t, s.AddParticipant(p))

	assert.Len(t, s.Roster(0), 2, "epoch 0 roster is frozen")
	assert.Len(t, s.Roster(1), 3)
	assert.Len(t, s.Participants(), 3)

	x := acceptTestBlock(t, s, s.Genesis(), 1, "x")
	_, err := s.ReceiveVote(mustVote(t, late.key, x, 1))
	assert.ErrorIs(t, err, ErrUnknownVoter)
}

func TestVotesForUnknownBlocksKeepRosters(t *testing.T) {
	nodes := newTestNodes(t, 3)
	s := newTestState(t, nil, nodes)

	for i := 0; i < 1000; i++ {
		bogus := BlockID{byte(i), byte(i >> 8), 0xff}
		_, err := s.ReceiveVote(mustVote(t, nodes[0].key, bogus, 1e9+uint64(i)*s.SlotsPerEpoch()))
		assert.ErrorIs(t, err, ErrUnknownBlock)
	}

	s.mtx.Lock()
	assert.Empty(t, s.rosters)
	s.mtx.Unlock()

	_, err := s.store.GetRoster(s.EpochOf(1e9))
	assert.Error(t, err)
}

func TestFutureRostersNotFrozen(t *testing.T) {
	nodes := newTestNodes(t, 2)
	late := newTestNodes(t, 1)[0]

	s, err := NewValidatorState(StateConfig{
		SlotsPerEpoch: 10,
		SlotDuration:  time.Second,
		GenesisTime:   testGenesisTime,
		Genesis:       genesisOf(nodes),
		Clock:         func() time.Time { return testGenesisTime.Add(time.Minute) },
	}, NewInmemStore(100), common.NewTestEntry(t, common.TestLogLevel))
	require.NoError(t, err)

	// the clock is at slot 60, in epoch 6
	assert.Len(t, s.Roster(7), 2)
	assert.Len(t, s.Roster(9), 2)

	p := late.p.Clone()
	p.Joined = 7
	assert.True(t, s.AddParticipant(p))

	assert.Len(t, s.Roster(7), 2, "the next epoch is frozen")
	assert.Len(t, s.Roster(9), 3, "later epochs follow the announcements")

	s.mtx.Lock()
	_, cached := s.rosters[9]
	s.mtx.Unlock()
	assert.False(t, cached)
}

func TestAcceptBlock(t *testing.T) {
	nodes := newTestNodes(t, 1)
	s := newTestState(t, nil, nodes)

	_, err := s.AcceptBlock(testBlock(BlockID{7}, 1, "orphan"))
	assert.ErrorIs(t, err, ErrUnknownParent)

	x := acceptTestBlock(t, s, s.Genesis(), 2, "x")
	_, err = s.AcceptBlock(testBlock(x, 2, "same slot"))
	assert.ErrorIs(t, err, ErrSlotMismatch)

	again := acceptTestBlock(t, s, s.Genesis(), 2, "x")
	assert.Equal(t, x, again)
	assert.Equal(t, 2, s.Stats().Blocks)
}

func TestBestTipTieBreak(t *testing.T) {
	nodes := newTestNodes(t, 3)
	s := newTestState(t, nil, nodes)

	x := acceptTestBlock(t, s, s.Genesis(), 1, "x")
	y := acceptTestBlock(t, s, s.Genesis(), 1, "y")
	assert.Equal(t, s.Genesis(), s.BestTip())

	// y stays below the quorum
	notarizeWith(t, s, nodes[:2], x, 1)
	_, err := s.ReceiveVote(mustVote(t, nodes[2].key, y, 1))
	require.NoError(t, err)
	assert.Equal(t, x, s.BestTip())

	// equal weight: the lowest id wins
	z := acceptTestBlock(t, s, s.Genesis(), 2, "z")
	notarizeWith(t, s, nodes[:2], z, 2)
	want := x
	if z.Less(x) {
		want = z
	}
	assert.Equal(t, want, s.BestTip())
}

func TestVoteBeforeBlock(t *testing.T) {
	nodes := newTestNodes(t, 3)
	s := newTestState(t, nodes[2].key, nodes)

	x := testBlock(s.Genesis(), 1, "x")
	for _, n := range nodes[:2] {
		_, err := s.ReceiveVote(mustVote(t, n.key, x.ID(), 1))
		assert.ErrorIs(t, err, ErrUnknownBlock)
	}

	info, err := s.AcceptBlock(x)
	require.NoError(t, err)
	assert.True(t, info.Streamlet.Notarized)
	assert.Len(t, info.Streamlet.Votes, 3, "held votes and the own vote")

	again, err := s.AcceptBlock(x)
	require.NoError(t, err)
	assert.Len(t, again.Streamlet.Votes, 3)
}
