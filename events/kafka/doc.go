// Package kafka forwards registry events to a Kafka topic.
//
// A Sink subscribes to every event type on an events.Bus and publishes each
// event as a JSON message keyed by provider name, so all events of one
// provider land on the same partition in order. Delivery is asynchronous:
// the bus hands events to a buffered channel and a writer goroutine
// publishes them. When the buffer is full the event is dropped and counted.
//
//	events:
//	  kafka:
//	    enabled: true
//	    brokers: ["localhost:9092"]
//	    topic: "backendkit.provider-events"
package kafka
