package net

import (
	"math/rand"
	"net"
	"strconv"

	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
)

// Hosts is the registry of known peer addresses. It keeps at most MaxHosts
// addresses and evicts the least recently stored ones.
type Hosts struct {
	cache *lru.Cache
	gauge prometheus.Gauge
}

// NewHosts creates a Hosts registry bounded to size addresses.
func NewHosts(size int) *Hosts {
	if size <= 0 {
		size = DefaultMaxHosts
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New(size)
	return &Hosts{cache: cache}
}

// Store adds the valid host:port addresses of addrs.
func (h *Hosts) Store(addrs []string) {
	for _, addr := range addrs {
		if !validHostAddr(addr) {
			continue
		}
		h.cache.Add(addr, struct{}{})
	}
	h.updateGauge()
}

// Remove deletes addr from the registry.
func (h *Hosts) Remove(addr string) {
	h.cache.Remove(addr)
	h.updateGauge()
}

func (h *Hosts) updateGauge() {
	if h.gauge != nil {
		h.gauge.Set(float64(h.cache.Len()))
	}
}

// Contains reports whether addr is known.
func (h *Hosts) Contains(addr string) bool {
	return h.cache.Contains(addr)
}

// Load returns every known address, oldest first.
func (h *Hosts) Load() []string {
	keys := h.cache.Keys()
	res := make([]string, 0, len(keys))
	for _, k := range keys {
		res = append(res, k.(string))
	}
	return res
}

// Len returns the number of known addresses.
func (h *Hosts) Len() int {
	return h.cache.Len()
}

// IsEmpty reports whether no address is known.
func (h *Hosts) IsEmpty() bool {
	return h.cache.Len() == 0
}

// Sample returns up to n addresses in random order.
func (h *Hosts) Sample(n int) []string {
	all := h.Load()
	rand.Shuffle(len(all), func(i, j int) {
		all[i], all[j] = all[j], all[i]
	})
	if n < len(all) {
		all = all[:n]
	}
	return all
}

func validHostAddr(addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	p, err := strconv.Atoi(port)
	return err == nil && p >= 0 && p <= 65535
}
