// Package utils provides conversion helpers shared by the connectors and the
// HTTP handlers.
//
// The loose converters (ToInt, ToString, ToBool) never fail and are meant for
// query parameters. ToDecimal and ToTime are strict: they return ErrEmpty for
// missing values and an error for anything they cannot parse, so wire payloads
// fail fast instead of carrying zero amounts into the engine.
package utils
