package round

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
)

// Picker draws opponent moves.
type Picker interface {
	Pick() Move
}

// RandomPicker draws uniformly from the three moves.
type RandomPicker struct{}

func (RandomPicker) Pick() Move {
	return allMoves[rand.IntN(len(allMoves))]
}

// SeededPicker draws moves from an HMAC-SHA256 byte stream so a session can
// be replayed exactly from its seeds. Each pick consumes four bytes, turned
// into a float in [0, 1) and scaled onto the three moves.
type SeededPicker struct {
	mu         sync.Mutex
	serverSeed string
	clientSeed string
	nonce      uint64
	round      uint64
	pos        int
	buf        [32]byte
	picks      int
}

// NewSeededPicker starts a stream at cursor zero.
func NewSeededPicker(serverSeed, clientSeed string, nonce uint64) *SeededPicker {
	p := &SeededPicker{serverSeed: serverSeed, clientSeed: clientSeed, nonce: nonce}
	p.fill()
	return p
}

func (p *SeededPicker) Pick() Move {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b [4]byte
	for i := range b {
		b[i] = p.next()
	}
	p.picks++
	idx := int(bytesToFloat(b) * float64(len(allMoves)))
	if idx >= len(allMoves) {
		idx = len(allMoves) - 1
	}
	return allMoves[idx]
}

// Picks returns how many moves have been drawn.
func (p *SeededPicker) Picks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.picks
}

func (p *SeededPicker) next() byte {
	if p.pos >= len(p.buf) {
		p.round++
		p.pos = 0
		p.fill()
	}
	b := p.buf[p.pos]
	p.pos++
	return b
}

func (p *SeededPicker) fill() {
	h := hmac.New(sha256.New, []byte(p.serverSeed))
	fmt.Fprintf(h, "%s:%d:%d", p.clientSeed, p.nonce, p.round)
	copy(p.buf[:], h.Sum(nil))
}

func bytesToFloat(b [4]byte) float64 {
	f := 0.0
	for i, v := range b {
		f += float64(v) / math.Pow(256, float64(i+1))
	}
	return f
}
