// Package centrifugo implements pubsub.Client on top of the Centrifugo server
// gRPC API.
//
// Every batch becomes one CentrifugoApi/Batch call carrying one publish command
// per publication. Command ids are 1-based and restart for every batch. A transport
// failure fails the batch with *TransportError; a reply carrying an error fails the
// batch with *LogicError naming the first offending reply id.
//
// The API messages are described at runtime from descriptorpb and encoded with
// dynamicpb, so the package does not depend on generated stubs. Only the fields the
// client reads or writes are declared; everything else in a reply is skipped as
// unknown fields.
package centrifugo
