// Package ingest turns raw sensor input into device reports.
//
// Two channels feed the registry:
//
//   - Scanner: JSON scan events published by radio scanners on MQTT
//     (fieldgate/scan/<scanner>). Each event is normalised into a report
//     and applied to the registry.
//   - GSMIngester: bodies posted by GSM uploaders. A body is decoded into
//     reports, cached by the report cache and applied to the registry.
//
// Manufacturer data decoding is pluggable through MSDDecoder; RawDecoder
// only splits off the company id.
package ingest
