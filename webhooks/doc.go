// Package webhooks receives provider deliveries: it authenticates the raw
// body, extracts the delivery ID, undoes the content encoding, and parses the
// records before handing them to the ingestor.
//
// Nothing here writes to storage directly. Decode and parse failures are
// recorded through core.Ingestor.RecordFailure so the raw payload survives for
// offline inspection and a redelivery with the same ID can claim it again.
package webhooks
