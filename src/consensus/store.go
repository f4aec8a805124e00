package consensus

// Store persists the chain view and the rosters.
type Store interface {
	GetBlock(id BlockID) (*BlockInfo, error)
	SetBlock(info *BlockInfo) error
	Blocks() ([]*BlockInfo, error)
	GetRoster(epoch uint64) ([]string, error)
	SetRoster(epoch uint64, roster []string) error
	GetParticipant(id string) (*Participant, error)
	SetParticipant(p *Participant) error
	Participants() ([]*Participant, error)
	Close() error
	StorePath() string
}
