package game

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// fakeConn records written frames. With block set, writes stall until the
// connection is closed.
type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	fail     bool
	block    chan struct{}
	closed   bool
	closeOne sync.Once
}

func newBlockingConn() *fakeConn {
	return &fakeConn{block: make(chan struct{})}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	if c.block != nil {
		<-c.block
		return errors.New("closed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOne.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		if c.block != nil {
			close(c.block)
		}
	})
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// types decodes the "type" field of every frame written so far.
func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var m struct {
			Type string `json:"type"`
		}
		json.Unmarshal(f, &m)
		out = append(out, m.Type)
	}
	return out
}

// recordingBus is a Broadcaster that keeps every message in order.
type recordingBus struct {
	mu         sync.Mutex
	broadcasts []interface{}
	direct     map[string][]interface{}
}

func newRecordingBus() *recordingBus {
	return &recordingBus{direct: make(map[string][]interface{})}
}

func (b *recordingBus) Broadcast(message interface{}) {
	b.mu.Lock()
	b.broadcasts = append(b.broadcasts, message)
	b.mu.Unlock()
}

func (b *recordingBus) SendToPlayer(playerID string, message interface{}) {
	b.mu.Lock()
	b.direct[playerID] = append(b.direct[playerID], message)
	b.mu.Unlock()
}

func (b *recordingBus) all() []interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]interface{}, len(b.broadcasts))
	copy(out, b.broadcasts)
	return out
}

func (b *recordingBus) toPlayer(playerID string) []interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]interface{}, len(b.direct[playerID]))
	copy(out, b.direct[playerID])
	return out
}

func (b *recordingBus) has(match func(interface{}) bool) bool {
	for _, m := range b.all() {
		if match(m) {
			return true
		}
	}
	return false
}

// linearCurve adds a fixed step per tick.
type linearCurve struct {
	step float64
}

func (c linearCurve) Next(current float64, _ int, _ RoundSeed) float64 {
	return roundMultiplier(current + c.step)
}

func fixedCrash(v float64) CrashPointGenerator {
	return GeneratorFunc(func(RoundSeed) float64 { return v })
}
