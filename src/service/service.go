package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/streamlet/src/consensus"
	"github.com/mosaicnetworks/streamlet/src/net"
)

// MaxTxSize bounds the body of a transaction submitted to /tx.
const MaxTxSize = 1 << 20

// Node is the view of the node exposed by the service.
type Node interface {
	GetStats() map[string]string
	GetBlock(id consensus.BlockID) (*consensus.BlockInfo, error)
	GetLastFinalized() *consensus.BlockInfo
	GetParticipants() []*consensus.Participant
	GetNetworks() map[string]net.P2PInfo
	SubmitTx(tx []byte)
}

// Service exposes the state of a node over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	node        Node
	gatherer    prometheus.Gatherer
	logger      *logrus.Entry

	mux    *http.ServeMux
	server *http.Server
}

// NewService creates a Service. Metrics are served from gatherer when it is
// not nil.
func NewService(bindAddress string, n Node, gatherer prometheus.Gatherer, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		gatherer:    gatherer,
		logger:      logger.WithField("prefix", "service"),
		mux:         http.NewServeMux(),
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/info", s.makeHandler(s.GetInfo))
	s.mux.HandleFunc("/participants", s.makeHandler(s.GetParticipants))
	s.mux.HandleFunc("/block/", s.makeHandler(s.GetBlock))
	s.mux.HandleFunc("/tx", s.makeHandler(s.SubmitTx))
	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve listens on the bind address. This is a blocking call; it returns nil
// after Shutdown.
func (s *Service) Serve() error {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	s.Lock()
	s.server = &http.Server{
		Addr:              s.bindAddress,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.server
	s.Unlock()

	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops a running Serve.
func (s *Service) Shutdown(ctx context.Context) error {
	s.Lock()
	server := s.server
	s.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.node.GetStats())
}

// GetInfo describes the networks of the node.
func (s *Service) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.node.GetNetworks())
}

// GetParticipants ...
func (s *Service) GetParticipants(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.node.GetParticipants())
}

// GetBlock returns the block whose hex id follows /block/, or the last
// finalized block for /block/last.
func (s *Service) GetBlock(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/block/"):]

	if param == "last" {
		s.writeJSON(w, s.node.GetLastFinalized())
		return
	}

	id, err := consensus.ParseBlockID(param)
	if err != nil {
		s.logger.WithError(err).Debugf("Parsing block id %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	block, err := s.node.GetBlock(id)
	if err != nil {
		s.logger.WithError(err).Debugf("Retrieving block %s", param)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	s.writeJSON(w, block)
}

// SubmitTx queues the body of a POST request as a transaction.
func (s *Service) SubmitTx(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tx, err := io.ReadAll(io.LimitReader(r.Body, MaxTxSize+1))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(tx) == 0 || len(tx) > MaxTxSize {
		http.Error(w, "transaction size out of bounds", http.StatusBadRequest)
		return
	}

	s.node.SubmitTx(tx)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Service) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Encoding response")
	}
}
