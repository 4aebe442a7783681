package common

import (
	"context"
	"crewcomms/src/events"
	"crewcomms/src/lib"
	"crewcomms/src/types"
	"log"

	"github.com/tidwall/gjson"
)

// RouteCrewEvent returns the consumer callback for the crew-events topic. Records that
// are not crew event envelopes are logged and skipped.
func RouteCrewEvent(bus events.Publisher) func(ctx context.Context, key, value []byte) {
	return func(ctx context.Context, key, value []byte) {
		if !gjson.ValidBytes(value) {
			log.Printf("[Kafka] skipping malformed record key=%s\n", string(key))
			return
		}
		t := types.CrewEventType(gjson.GetBytes(value, "type").String())
		if !t.Valid() {
			log.Printf("[Kafka] skipping unknown event type %q\n", t)
			return
		}
		if crewID := gjson.GetBytes(value, "crewId").String(); crewID == "" || (len(key) > 0 && string(key) != crewID) {
			log.Printf("[Kafka] skipping %s with mismatched key %q\n", t, string(key))
			return
		}
		e, err := events.Unmarshal(value)
		if err != nil {
			log.Printf("[Kafka] could not decode %s: %s\n", t, err.Error())
			return
		}
		if err := bus.Publish(ctx, e); err != nil {
			log.Printf("[Kafka] handling %s %s failed: %s\n", t, e.ID, err.Error())
		}
	}
}

// CrewEventsConsumer feeds the crew-events topic into the in-process bus until ctx ends.
func CrewEventsConsumer(ctx context.Context, groupId, topic string, bus events.Publisher) error {
	return lib.KafkaConsumer(ctx, groupId, topic, RouteCrewEvent(bus))
}
