// Package archive keeps every fetched tick batch as a compressed Parquet
// file, one file per batch:
//
//	<dir>/<kind>/<first_ts>-<last_ts>.parquet
//
// The archive is append-only. It survives snapshot loss and can be replayed
// through source.ArchiveSource to rebuild a dataset from scratch, which is
// the only way to recover history at full resolution once collapsed.
package archive
