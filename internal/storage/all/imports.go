// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each concrete backend, which register
// their factories and DDL bootstrappers with the storage package:
//
//   - "postgres" (emailextract/internal/storage/postgres)
//   - "mssql"    (emailextract/internal/storage/mssql)
//   - "mysql"    (emailextract/internal/storage/mysql)
//   - "sqlite"   (emailextract/internal/storage/sqlite)
//   - "mongo"    (emailextract/internal/storage/mongo)
//   - "csv"      (emailextract/internal/storage/csvfile)
//
// Typical usage (in cmd/emailextract):
//
//	import _ "emailextract/internal/storage/all"
//
//	repo, err := storage.New(ctx, storage.Config{Kind: spec.Storage.Kind, ...})
//	if err != nil {
//	    // handle error
//	}
//	defer repo.Close()
//
// A binary that needs only a subset of backends can import those packages
// directly instead of this one.
package all

import (
	_ "emailextract/internal/storage/csvfile"
	_ "emailextract/internal/storage/mongo"
	_ "emailextract/internal/storage/mssql"
	_ "emailextract/internal/storage/mysql"
	_ "emailextract/internal/storage/postgres"
	_ "emailextract/internal/storage/sqlite"
)
