package consensus

import (
	"bytes"
	"fmt"
	"os"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"

	cm "github.com/mosaicnetworks/streamlet/src/common"
)

const (
	blockPrefix       = "block"
	rosterPrefix      = "roster"
	participantPrefix = "participant"
)

// BadgerStore implements the Store interface with a badger database. Reads go
// through an InmemStore cache.
type BadgerStore struct {
	inmemStore    *InmemStore
	db            *badger.DB
	path          string
	needBootstrap bool
}

func openBadger(path string, logger *logrus.Entry) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithLogger(logger)
	return badger.Open(opts)
}

// NewBadgerStore creates a brand new Store with a new database
func NewBadgerStore(cacheSize int, path string, logger *logrus.Entry) (*BadgerStore, error) {
	handle, err := openBadger(path, logger)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{
		inmemStore: NewInmemStore(cacheSize),
		db:         handle,
		path:       path,
	}, nil
}

// LoadBadgerStore creates a Store from an existing database
func LoadBadgerStore(cacheSize int, path string, logger *logrus.Entry) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	handle, err := openBadger(path, logger)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{
		inmemStore:    NewInmemStore(cacheSize),
		db:            handle,
		path:          path,
		needBootstrap: true,
	}, nil
}

// LoadOrCreateBadgerStore loads the database at path if it exists, and
// creates it otherwise.
func LoadOrCreateBadgerStore(cacheSize int, path string, logger *logrus.Entry) (*BadgerStore, error) {
	store, err := LoadBadgerStore(cacheSize, path, logger)

	if err != nil {
		store, err = NewBadgerStore(cacheSize, path, logger)

		if err != nil {
			return nil, err
		}
	}

	return store, nil
}

//==============================================================================
//Keys

func blockKey(id BlockID) []byte {
	return []byte(fmt.Sprintf("%s_%s", blockPrefix, id.String()))
}

func rosterKey(epoch uint64) []byte {
	return []byte(fmt.Sprintf("%s_%09d", rosterPrefix, epoch))
}

func participantKey(id string) []byte {
	return []byte(fmt.Sprintf("%s_%s", participantPrefix, id))
}

//==============================================================================
//Implement the Store interface

// GetBlock implements the Store interface.
func (s *BadgerStore) GetBlock(id BlockID) (*BlockInfo, error) {
	res, err := s.inmemStore.GetBlock(id)
	if err != nil {
		res, err = s.dbGetBlock(id)
	}
	return res, mapError(err, "Block", id.String())
}

// SetBlock implements the Store interface.
func (s *BadgerStore) SetBlock(info *BlockInfo) error {
	if err := s.inmemStore.SetBlock(info); err != nil {
		return err
	}
	return s.dbSetBlock(info)
}

// Blocks implements the Store interface. It reads every block from the
// database, ordered by slot.
func (s *BadgerStore) Blocks() ([]*BlockInfo, error) {
	return s.dbBlocks()
}

// GetRoster implements the Store interface.
func (s *BadgerStore) GetRoster(epoch uint64) ([]string, error) {
	res, err := s.inmemStore.GetRoster(epoch)
	if err != nil {
		res, err = s.dbGetRoster(epoch)
		if cm.IsStore(err, cm.KeyNotFound) {
			err = cm.NewStoreErr("Roster", cm.NoRoster, fmt.Sprint(epoch))
		}
	}
	return res, err
}

// SetRoster implements the Store interface.
func (s *BadgerStore) SetRoster(epoch uint64, roster []string) error {
	if err := s.inmemStore.SetRoster(epoch, roster); err != nil {
		return err
	}
	return s.dbSetRoster(epoch, roster)
}

// GetParticipant implements the Store interface.
func (s *BadgerStore) GetParticipant(id string) (*Participant, error) {
	res, err := s.inmemStore.GetParticipant(id)
	if err != nil {
		res, err = s.dbGetParticipant(id)
		if cm.IsStore(err, cm.KeyNotFound) {
			err = cm.NewStoreErr("Participant", cm.UnknownParticipant, id)
		}
	}
	return res, err
}

// SetParticipant implements the Store interface.
func (s *BadgerStore) SetParticipant(p *Participant) error {
	if err := s.inmemStore.SetParticipant(p); err != nil {
		return err
	}
	return s.dbSetParticipant(p)
}

// Participants implements the Store interface.
func (s *BadgerStore) Participants() ([]*Participant, error) {
	return s.dbParticipants()
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	if err := s.inmemStore.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// NeedBootstrap reports whether the store was loaded from an existing
// database.
func (s *BadgerStore) NeedBootstrap() bool {
	return s.needBootstrap
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

func (s *BadgerStore) dbGet(key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	return val, err
}

func (s *BadgerStore) dbSet(key, val []byte) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set(key, val); err != nil {
		return err
	}
	return tx.Commit()
}

// dbScan calls f with the value of every key starting with prefix.
func (s *BadgerStore) dbScan(prefix string, f func(val []byte) error) error {
	p := []byte(prefix + "_")
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := f(val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) dbGetBlock(id BlockID) (*BlockInfo, error) {
	val, err := s.dbGet(blockKey(id))
	if err != nil {
		return nil, err
	}

	info := new(BlockInfo)
	if err := info.Unmarshal(val); err != nil {
		return nil, errors.Wrapf(err, "decoding block %s", id)
	}
	return info, nil
}

func (s *BadgerStore) dbSetBlock(info *BlockInfo) error {
	val, err := info.Marshal()
	if err != nil {
		return err
	}
	return s.dbSet(blockKey(info.ID()), val)
}

func (s *BadgerStore) dbBlocks() ([]*BlockInfo, error) {
	var res []*BlockInfo
	err := s.dbScan(blockPrefix, func(val []byte) error {
		info := new(BlockInfo)
		if err := info.Unmarshal(val); err != nil {
			return errors.Wrap(err, "decoding block")
		}
		res = append(res, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortBlockInfos(res)
	return res, nil
}

func (s *BadgerStore) dbGetRoster(epoch uint64) ([]string, error) {
	val, err := s.dbGet(rosterKey(epoch))
	if err != nil {
		return nil, mapError(err, "Roster", fmt.Sprint(epoch))
	}

	var roster []string
	if err := decodeCanonical(val, &roster); err != nil {
		return nil, errors.Wrapf(err, "decoding roster %d", epoch)
	}
	return roster, nil
}

func (s *BadgerStore) dbSetRoster(epoch uint64, roster []string) error {
	val, err := encodeCanonical(roster)
	if err != nil {
		return err
	}
	return s.dbSet(rosterKey(epoch), val)
}

func (s *BadgerStore) dbGetParticipant(id string) (*Participant, error) {
	val, err := s.dbGet(participantKey(id))
	if err != nil {
		return nil, mapError(err, "Participant", id)
	}

	p := new(Participant)
	if err := decodeCanonical(val, p); err != nil {
		return nil, errors.Wrapf(err, "decoding participant %s", id)
	}
	return p, nil
}

func (s *BadgerStore) dbSetParticipant(p *Participant) error {
	val, err := encodeCanonical(p)
	if err != nil {
		return err
	}
	return s.dbSet(participantKey(p.ID()), val)
}

func (s *BadgerStore) dbParticipants() ([]*Participant, error) {
	var res []*Participant
	err := s.dbScan(participantPrefix, func(val []byte) error {
		p := new(Participant)
		if err := decodeCanonical(val, p); err != nil {
			return errors.Wrap(err, "decoding participant")
		}
		res = append(res, p)
		return nil
	})
	return res, err
}

func encodeCanonical(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	if err := codec.NewEncoder(b, jh).Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decodeCanonical(data []byte, v interface{}) error {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return codec.NewDecoderBytes(data, jh).Decode(v)
}

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
