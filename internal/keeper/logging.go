package keeper

import (
	"log"
	"time"
)

// keeperEvent is one line of the structured decision log.
type keeperEvent struct {
	TsMs  int64  `json:"ts_ms"`
	Event string `json:"event"` // tick | cancel | place | skip

	TargetPrice string `json:"target_price,omitempty"`
	OpenBuys    int    `json:"open_buys,omitempty"`
	OpenSells   int    `json:"open_sells,omitempty"`

	OrderID string `json:"order_id,omitempty"`
	Side    string `json:"side,omitempty"`
	Price   string `json:"price,omitempty"`
	Amount  string `json:"amount,omitempty"`

	Reason string `json:"reason,omitempty"`
	Dry    bool   `json:"dry,omitempty"`
	Ok     bool   `json:"ok,omitempty"`
	Err    string `json:"err,omitempty"`

	UptimeMs int64 `json:"uptime_ms,omitempty"`
}

func (e *Engine) logEvent(ev keeperEvent) {
	if e.opts.EventLog == nil {
		return
	}
	ev.TsMs = time.Now().UnixMilli()
	ev.UptimeMs = time.Since(e.startedAt).Milliseconds()
	if err := e.opts.EventLog.Write(ev); err != nil {
		log.Printf("[warn] event log write failed: %v", err)
	}
}
