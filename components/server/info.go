package server

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/entity"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/colonyworld/replica/engine/gwutils"
	"github.com/shirou/gopsutil/process"
)

const procStatsInterval = time.Second * 5

// PeerInfo describes one connected participant
type PeerInfo struct {
	ID          common.ParticipantID `json:"id"`
	Addr        string               `json:"addr"`
	Joined      bool                 `json:"joined"`
	Interest    int                  `json:"interest"`
	QueuedBytes int                  `json:"queued_bytes"`
}

// Info is the operator summary of a running server, reported by the `info` command and /info
type Info struct {
	SessionID      string         `json:"session_id"`
	Transport      string         `json:"transport"`
	Addr           string         `json:"addr"`
	Uptime         string         `json:"uptime"`
	Ticks          uint64         `json:"ticks"`
	Entities       int            `json:"entities"`
	EntitiesByType map[string]int `json:"entities_by_type"`
	Peers          []PeerInfo     `json:"peers"`
	Goroutines     int            `json:"goroutines"`
	CPUPercent     float64        `json:"cpu_percent"`
	RSS            uint64         `json:"rss"`
}

// Info collects the current summary, it must be called on the tick goroutine
func (s *Server) Info() *Info {
	info := &Info{
		SessionID:      s.Session.ID,
		Transport:      s.cfg.Transport,
		Ticks:          s.Session.TickCount(),
		Entities:       s.Session.EntityCount(),
		EntitiesByType: map[string]int{},
		Goroutines:     runtime.NumGoroutine(),
	}
	if addr := s.Addr(); addr != nil {
		info.Addr = addr.String()
	}
	if !s.startTime.IsZero() {
		info.Uptime = time.Since(s.startTime).Truncate(time.Second).String()
	}
	for _, typeKey := range entity.RegisteredTypeKeys() {
		if n := s.Session.EntityCountByType(typeKey); n > 0 {
			info.EntitiesByType[typeKey] = n
		}
	}
	for _, p := range s.Session.Peers() {
		pi := PeerInfo{
			ID:          p.ID,
			Joined:      p.Joined(),
			Interest:    p.InterestCount(),
			QueuedBytes: p.QueuedBytes(),
		}
		if addr := p.RemoteAddr(); addr != nil {
			pi.Addr = addr.String()
		}
		info.Peers = append(info.Peers, pi)
	}
	if s.procStats != nil {
		info.CPUPercent, info.RSS = s.procStats.get()
	}
	return info
}

// LatestInfo returns the summary collected on the last info update, safe to call from any goroutine
func (s *Server) LatestInfo() *Info {
	s.infoLock.Lock()
	defer s.infoLock.Unlock()
	return s.latestInfo
}

func (s *Server) updateInfo() {
	info := s.Info()
	s.infoLock.Lock()
	s.latestInfo = info
	s.infoLock.Unlock()
}

func (info *Info) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "session %s on %s://%s, up %s, %d ticks\n", info.SessionID, info.Transport, info.Addr, info.Uptime, info.Ticks)
	fmt.Fprintf(&sb, "entities: %d\n", info.Entities)
	typeKeys := make([]string, 0, len(info.EntitiesByType))
	for typeKey := range info.EntitiesByType {
		typeKeys = append(typeKeys, typeKey)
	}
	sort.Strings(typeKeys)
	for _, typeKey := range typeKeys {
		fmt.Fprintf(&sb, "    %-20s %d\n", typeKey, info.EntitiesByType[typeKey])
	}
	fmt.Fprintf(&sb, "peers: %d\n", len(info.Peers))
	for _, p := range info.Peers {
		fmt.Fprintf(&sb, "    %-12s %-22s joined=%v interest=%d queued=%d\n", p.ID, p.Addr, p.Joined, p.Interest, p.QueuedBytes)
	}
	fmt.Fprintf(&sb, "goroutines: %d, cpu: %.1f%%, rss: %.1fMB", info.Goroutines, info.CPUPercent, float64(info.RSS)/1024/1024)
	return sb.String()
}

// procStats samples cpu and memory usage of this process in background
type procStats struct {
	lock       sync.Mutex
	cpuPercent float64
	rss        uint64
	cancel     context.CancelFunc
}

func newProcStats() *procStats {
	ps := &procStats{}
	pid := os.Getpid()
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		gwlog.Errorf("can not find server process: pid = %v: %v", pid, err)
		return ps
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps.cancel = cancel
	go gwutils.RepeatUntilPanicless(func() {
		for {
			ps.collect(ctx, p)
			select {
			case <-ctx.Done():
				return
			case <-time.After(procStatsInterval):
			}
		}
	})
	return ps
}

func (ps *procStats) collect(ctx context.Context, p *process.Process) {
	cpuPercent, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		gwlog.Debugf("get process cpu percent failed: %v", err)
		return
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		gwlog.Debugf("get process memory info failed: %v", err)
		return
	}
	ps.lock.Lock()
	ps.cpuPercent, ps.rss = cpuPercent, mem.RSS
	ps.lock.Unlock()
}

func (ps *procStats) get() (float64, uint64) {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	return ps.cpuPercent, ps.rss
}

func (ps *procStats) stop() {
	if ps.cancel != nil {
		ps.cancel()
	}
}
