// Package integrity checks the infrastructure the reconciler depends on.
//
// # Checks Provided
//
//   - Schema: the live transactions table has every column of the model,
//     with matching types where the model pins one. Fix runs the migration.
//   - Bucket: the export bucket exists and holds the exports/ folder. Fix
//     creates both. Skipped when export storage is not configured.
//
// # HTTP Endpoints
//
//   - GET /integrity : Runs all checks (supports ?fix=true). 503 when unhealthy.
//   - GET /integrity/schema : Runs the schema check (supports ?fix=true).
//   - GET /integrity/bucket : Runs the bucket check (supports ?fix=true).
package integrity
