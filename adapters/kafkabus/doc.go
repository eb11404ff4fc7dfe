// Package kafkabus carries mutation notifications over Kafka. A Publisher
// registered as a mutation handler in the writing process emits one message
// per committed mutation; a Consumer in the webhook process feeds them into
// NotifyMutation.
package kafkabus
