package attachment

import (
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
)

// progressStep is the smallest ratio advance that is reported.
const progressStep = 0.05

// initialRatio marks a transfer as started before any byte moved.
const initialRatio = 0.01

// progress publishes transfer ratios, dropping updates that advance less
// than progressStep over the last published one.
type progress struct {
	cache *cache.Cache
	state chat.TransferState
	last  float64
}

func startProgress(c *cache.Cache, s chat.TransferState) *progress {
	s.Ratio = initialRatio
	c.SetTransfer(s)
	return &progress{cache: c, state: s, last: initialRatio}
}

func (p *progress) update(ratio float64) {
	if ratio-p.last <= progressStep {
		return
	}
	p.last = ratio
	p.state.Ratio = ratio
	p.cache.SetTransfer(p.state)
}

func (p *progress) done(path string) {
	p.state.Ratio, p.state.Path = 1, path
	p.cache.SetTransfer(p.state)
}

func (p *progress) fail(err error) {
	p.state.Err = err.Error()
	p.cache.SetTransfer(p.state)
}
