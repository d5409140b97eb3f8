// Package thread decides which page of a conversation to fetch and loads it
// into the cache.
package thread

import (
	"github.com/matheus3301/chatsync/internal/chat"
)

// Page sizes and the gap threshold.
const (
	InitialLoad            = 50
	InitialLoadConstrained = 20
	PerLoad                = 100
	PerLoadConstrained     = 50
	LargestGapToFill       = 50
)

// OldestVisible is the id of the first visible message; id 1 is the
// conversation header.
const OldestVisible chat.MessageID = 2

// Trigger is what asked for a load.
type Trigger string

const (
	// TriggerSelect covers selection and new-content requests.
	TriggerSelect Trigger = "select"
	// TriggerStale reloads a conversation the backend declared stale.
	TriggerStale Trigger = "stale"
	// TriggerLoadMore paginates older history.
	TriggerLoadMore Trigger = "loadMore"
)

// Case names the classification outcome.
type Case string

const (
	CaseColdStart Case = "coldStart"
	CaseSmallGap  Case = "smallGap"
	CaseBigGap    Case = "bigGap"
	CaseResume    Case = "resume"
	CaseLoadMore  Case = "loadMore"
	CaseNone      Case = "none"
)

// Plan is the fetch a load should issue. A nil Pivot leaves the query
// open-ended.
type Plan struct {
	Case          Case
	Pivot         *chat.MessageID
	Recent        bool
	Num           int
	ClearOrdinals bool
}

// Skip reports whether nothing needs fetching.
func (p Plan) Skip() bool {
	return p.Case == CaseNone
}

// Classify picks the fetch for a conversation from whether its thread was
// loaded before and its known ordinals in ascending order.
func Classify(hasLoaded bool, ordinals []chat.Ordinal, trigger Trigger, constrained bool) Plan {
	initial, perLoad := InitialLoad, PerLoad
	if constrained {
		initial, perLoad = InitialLoadConstrained, PerLoadConstrained
	}

	if !hasLoaded {
		p := Plan{Case: CaseColdStart, Num: initial}
		if len(ordinals) > 0 {
			p.Pivot = pivot(ordinals[0])
		}
		return p
	}
	if trigger == TriggerStale {
		return Plan{Case: CaseColdStart, Num: initial, ClearOrdinals: true}
	}
	if trigger == TriggerLoadMore {
		if len(ordinals) == 0 {
			return Plan{Case: CaseNone}
		}
		oldest := ordinals[0].Floor()
		if oldest <= OldestVisible {
			return Plan{Case: CaseNone}
		}
		return Plan{Case: CaseLoadMore, Pivot: &oldest, Num: perLoad}
	}
	if len(ordinals) == 0 {
		// loaded and empty: only newer messages can exist
		return Plan{Case: CaseResume, Recent: true, Num: perLoad}
	}

	last := ordinals[len(ordinals)-1]
	if len(ordinals) >= 2 {
		prev := ordinals[len(ordinals)-2]
		if gap := last.Base - prev.Base; gap > 1 {
			if gap < LargestGapToFill {
				return Plan{Case: CaseSmallGap, Pivot: pivot(prev), Recent: true, Num: LargestGapToFill}
			}
			return Plan{Case: CaseBigGap, Num: initial, ClearOrdinals: true}
		}
	}
	return Plan{Case: CaseResume, Pivot: pivot(last), Recent: true, Num: perLoad}
}

func pivot(o chat.Ordinal) *chat.MessageID {
	id := o.Floor()
	if id == 0 {
		return nil
	}
	return &id
}
