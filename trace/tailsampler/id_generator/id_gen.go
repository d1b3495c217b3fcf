package id_generator

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// IdGenerator produces the random trace and span identifiers carried by
// wire records. Collisions are negligible by construction.
type IdGenerator struct {
	lock sync.Mutex
	rand *rand.Rand
}

func New() *IdGenerator {
	var seed int64
	seedN, err := cryptorand.Int(cryptorand.Reader, big.NewInt(math.MaxInt64))
	if err == nil {
		seed = seedN.Int64()
	} else {
		seed = time.Now().UnixNano()
	}
	return &IdGenerator{
		rand: rand.New(rand.NewSource(seed)),
	}
}

func (g *IdGenerator) genUint64() uint64 {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.rand.Uint64()
}

// NewTraceID returns a fresh 16-byte trace id.
func (g *IdGenerator) NewTraceID() trace.TraceID {
	return trace.TraceID(uuid.New())
}

// NewSpanID returns a fresh 8-byte span id. The all-zero id is reserved as
// "invalid" on the wire, so it is never handed out.
func (g *IdGenerator) NewSpanID() trace.SpanID {
	var id trace.SpanID
	binary.BigEndian.PutUint64(id[:], g.genUint64())
	if !id.IsValid() {
		id[7] = 1
	}
	return id
}
