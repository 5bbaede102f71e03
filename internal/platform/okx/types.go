package okx

import (
	"math"
	"strconv"

	"github.com/alanyoungcy/costsim/internal/domain"
)

// request is an outbound operation on the OKX v5 public websocket, either a
// channel subscription or a keep-alive ping.
type request struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args,omitempty"`
}

type subscribeArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// envelope is the outer shape of every inbound message. Keep-alive acks carry
// only Event; book updates carry a Data array whose first element holds the
// current levels.
type envelope struct {
	Event string        `json:"event"`
	Arg   *subscribeArg `json:"arg,omitempty"`
	Data  []bookData    `json:"data,omitempty"`
}

// bookData holds one book update: asks and bids as [price, size] string
// pairs, best ask and best bid first respectively.
type bookData struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	TS   string     `json:"ts"`
}

// levelsFromPairs converts [price, size] string pairs into price levels.
// Pairs that do not parse to non-negative finite numbers are skipped; a
// missing side comes out as an empty, non-nil slice.
func levelsFromPairs(pairs [][]string) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) < 2 {
			continue
		}
		price, err1 := strconv.ParseFloat(pair[0], 64)
		size, err2 := strconv.ParseFloat(pair[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if price < 0 || size < 0 || math.IsInf(price, 0) || math.IsNaN(price) ||
			math.IsInf(size, 0) || math.IsNaN(size) {
			continue
		}
		levels = append(levels, domain.PriceLevel{Price: price, Size: size})
	}
	return levels
}
