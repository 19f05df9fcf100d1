// Package signals receives parsed trade signals over a Redis pub/sub
// channel. The upstream parser publishes one JSON Signal per message;
// raw chat text never reaches this process.
package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	goredis "github.com/go-redis/redis/v8"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

// DefaultChannel is the pub/sub channel the parser publishes to.
const DefaultChannel = "pub:signals"

// Handler processes one decoded signal.
type Handler func(ctx context.Context, sig model.Signal)

// Ingest is a blocking Redis pub/sub consumer.
type Ingest struct {
	rdb     *goredis.Client
	channel string
	handler Handler
}

// NewIngest creates a consumer. channel "" uses DefaultChannel.
func NewIngest(rdb *goredis.Client, channel string, h Handler) *Ingest {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Ingest{rdb: rdb, channel: channel, handler: h}
}

// Run consumes until ctx is cancelled. Malformed payloads are logged
// and skipped; the subscription itself reconnects inside go-redis.
func (in *Ingest) Run(ctx context.Context) error {
	sub := in.rdb.Subscribe(ctx, in.channel)
	defer sub.Close()

	// Fail fast if the initial SUBSCRIBE cannot be issued.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("signals: subscribe %s: %w", in.channel, err)
	}
	log.Printf("[signals] subscribed to %s", in.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			sig, err := Decode([]byte(msg.Payload))
			if err != nil {
				log.Printf("[signals] dropping bad payload: %v", err)
				continue
			}
			in.handler(ctx, sig)
		}
	}
}

// Decode parses and normalizes one signal payload. Symbol and action
// are uppercased; an empty symbol or action is rejected here so the
// handler only sees plausibly tradeable signals.
func Decode(payload []byte) (model.Signal, error) {
	var sig model.Signal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return sig, fmt.Errorf("signals: decode: %w", err)
	}
	sig.Symbol = strings.ToUpper(strings.TrimSpace(sig.Symbol))
	sig.Action = strings.ToUpper(strings.TrimSpace(sig.Action))
	if sig.Symbol == "" {
		return sig, fmt.Errorf("signals: payload has no symbol")
	}
	if sig.Action != "BUY" && sig.Action != "SELL" {
		return sig, fmt.Errorf("signals: unknown action %q", sig.Action)
	}
	return sig, nil
}
