// Package kafka implements pubsub.Client on top of a Kafka producer.
//
// Each publication is produced to the topic named by its channel. Publish blocks
// until every message of the batch has a delivery report, and fails the batch with
// *DeliveryError on the first failed report.
//
// Close MUST be called to stop background goroutines and flush in-flight messages;
// the dispatcher does this during Shutdown.
package kafka
