package memory

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// link carries frames between two channels over a virtual bridge.
//
// A background goroutine ticks the bridge. It is stopped before the bridge
// ends are closed so that no delivery races a close.
type link struct {
	bridge    *test.Bridge
	condition NetworkCondition

	rngMu sync.Mutex
	rng   *rand.Rand

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newLink(interval time.Duration, cond NetworkCondition) *link {
	l := &link{
		bridge:    test.NewBridge(),
		condition: cond,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh:    make(chan struct{}),
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-l.stopCh:
				return
			case <-ticker.C:
				l.bridge.Tick()
			}
		}
	}()

	return l
}

// write sends one frame on conn, applying the network condition.
func (l *link) write(conn net.Conn, frame []byte) error {
	copies := 1
	if l.condition.DropRate > 0 || l.condition.DuplicateRate > 0 {
		l.rngMu.Lock()
		if l.rng.Float64() < l.condition.DropRate {
			copies = 0
		} else if l.rng.Float64() < l.condition.DuplicateRate {
			copies = 2
		}
		l.rngMu.Unlock()
	}

	for i := 0; i < copies; i++ {
		if _, err := conn.Write(frame); err != nil {
			return err
		}
	}
	return nil
}

func (l *link) close() {
	l.closeOnce.Do(func() {
		close(l.stopCh)
		l.wg.Wait()

		_ = l.bridge.GetConn0().Close()
		_ = l.bridge.GetConn1().Close()
	})
}
