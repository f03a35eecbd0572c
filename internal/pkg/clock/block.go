package clock

import (
	"time"
)

type Block struct {
	Height uint64
	Time   time.Time
}

// BlockOracle derives a monotonically increasing block height from a clock:
// one block every interval since genesis, starting at genesisHeight.
type BlockOracle struct {
	clock         Clock
	genesis       time.Time
	genesisHeight uint64
	interval      time.Duration
}

func NewBlockOracle(clock Clock, genesis time.Time, genesisHeight uint64, interval time.Duration) *BlockOracle {
	if interval <= 0 {
		interval = time.Second
	}
	return &BlockOracle{
		clock:         clock,
		genesis:       genesis.UTC(),
		genesisHeight: genesisHeight,
		interval:      interval,
	}
}

func (o *BlockOracle) Current() Block {
	now := o.clock.Now().UTC()
	height := o.genesisHeight
	if elapsed := now.Sub(o.genesis); elapsed > 0 {
		height += uint64(elapsed / o.interval)
	}
	return Block{Height: height, Time: now}
}
