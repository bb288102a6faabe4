// Package models contains GORM persistence models that map to database tables.
// Domain types carry no GORM tags; repositories convert with ToDomain and
// the *ModelFromDomain constructors.
//
// The production schema is owned by the SQL migrations. AutoMigrate of All()
// is used only for the embedded SQLite store and tests, so tags here must
// stay in step with the migrations.
package models
