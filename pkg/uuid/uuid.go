// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package uuid provides time-ordered unique identifiers for principals.

It wraps the standard UUID library to generate Version 7 values, which keep
the primary key index of the account table append-mostly.
*/
package uuid

import "github.com/google/uuid"

// # Generators

// New generates a new UUIDv7 string.
func New() string {

	// Create a new version 7 UUID (time-sortable)
	id, err := uuid.NewV7()

	// entropy failure is an unrecoverable system-level error
	if err != nil {
		panic("uuid: failed to generate UUID: " + err.Error())
	}

	return id.String()
}

// # Parsing

// Valid reports whether value is a canonical UUID string of any version.
//
// Identifiers taken from query strings are checked with it before they reach
// the database, where a malformed value is a type error rather than a miss.
func Valid(value string) bool {
	id, err := uuid.Parse(value)
	return err == nil && id.String() == value
}
