package scheduler

import (
	"github.com/ethereum/go-ethereum/common"

	pkgsyncstore "github.com/ponder-go/ponder/pkg/syncstore"
)

// router maps (address, topic0) to the handlers interested in it, the same
// shape as the teacher's IndexerCoordinator address/topic routing tables.
type router struct {
	addressTopics    map[common.Address]map[common.Hash][]*Registration
	addressAllTopics map[common.Address][]*Registration
}

func newRouter(regs []*Registration) *router {
	r := &router{
		addressTopics:    make(map[common.Address]map[common.Hash][]*Registration),
		addressAllTopics: make(map[common.Address][]*Registration),
	}
	for _, reg := range regs {
		if reg.Topic0 == nil {
			r.addressAllTopics[reg.Address] = append(r.addressAllTopics[reg.Address], reg)
			continue
		}
		if r.addressTopics[reg.Address] == nil {
			r.addressTopics[reg.Address] = make(map[common.Hash][]*Registration)
		}
		r.addressTopics[reg.Address][*reg.Topic0] = append(r.addressTopics[reg.Address][*reg.Topic0], reg)
	}
	return r
}

// route returns every handler registration interested in this event's log.
func (r *router) route(event pkgsyncstore.LogEvent) []*Registration {
	seen := make(map[string]struct{})
	var matched []*Registration

	add := func(regs []*Registration) {
		for _, reg := range regs {
			if _, ok := seen[reg.Name]; ok {
				continue
			}
			seen[reg.Name] = struct{}{}
			matched = append(matched, reg)
		}
	}

	add(r.addressAllTopics[event.Log.Address])
	if len(event.Log.Topics) > 0 {
		add(r.addressTopics[event.Log.Address][event.Log.Topics[0]])
	}

	return matched
}
