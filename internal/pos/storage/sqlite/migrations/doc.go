// Package migrations embeds SQL migration scripts for the POS SQLite store.
package migrations
