package loopback

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/armish/fireplace/pkg/action"
	"github.com/armish/fireplace/pkg/buffer"
	"github.com/armish/fireplace/pkg/config"
	"github.com/armish/fireplace/pkg/module"
)

// DefaultInterval is the default Generator emission interval.
const DefaultInterval = 10 * time.Millisecond

// Generator emits numbered payloads at a fixed interval. It serves WAIT
// only.
//
// Parameters:
//
//	-interval <dur>   time between payloads (default 10ms)
//	-prefix <text>    payload prefix (default "sample-")
//	-count <n>        stop after n payloads, 0 for unlimited
type Generator struct {
	module.BaseUnit

	interval time.Duration
	prefix   string
	count    int

	seq int
}

// NewGenerator creates an unconfigured generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Capabilities narrows the unit to WAIT.
func (g *Generator) Capabilities() action.Mask {
	return action.Pack(action.Wait)
}

// Configure parses the unit parameters.
func (g *Generator) Configure(params string) error {
	fs := flag.NewFlagSet(UnitGenerator, flag.ContinueOnError)
	interval := fs.Duration("interval", DefaultInterval, "emission interval")
	prefix := fs.String("prefix", "sample-", "payload prefix")
	count := fs.Int("count", 0, "payloads to emit")

	if _, err := config.ParseParams(fs, params); err != nil {
		return err
	}
	if *interval <= 0 {
		return fmt.Errorf("%w: %s: interval %s", config.ErrInvalid, UnitGenerator, *interval)
	}
	if *count < 0 {
		return fmt.Errorf("%w: %s: count %d", config.ErrInvalid, UnitGenerator, *count)
	}

	g.interval = *interval
	g.prefix = *prefix
	g.count = *count
	return nil
}

// Produce emits one payload per interval. Payloads carry their sequence
// number as the only parameter.
func (g *Generator) Produce(ctx context.Context, queue *buffer.Queue) error {
	if g.count > 0 && g.seq >= g.count {
		<-ctx.Done()
		return ctx.Err()
	}

	timer := time.NewTimer(g.interval)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	seq := strconv.Itoa(g.seq)
	queue.Push(buffer.NewItem([]byte(g.prefix+seq), seq))
	g.seq++
	return nil
}

var (
	_ module.Producer = (*Generator)(nil)
	_ module.Capable  = (*Generator)(nil)
)
