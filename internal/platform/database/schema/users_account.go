// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package schema names the tables and columns of the relational store so that
// queries are assembled from one definition instead of scattered literals.
package schema

import "strings"

// UserAccountTable represents the 'users.account' table
type UserAccountTable struct {
	Table              string
	ID                 string
	Username           string
	NormalizedUsername string
	Email              string
	NormalizedEmail    string
	EmailConfirmed     string
	PasswordHash       string
	SecurityStamp      string
	LockoutEnabled     string
	AccessFailedCount  string
	LockoutEnd         string
	TwoFactorEnabled   string
	AuthenticatorKey   string
	RecoveryCodes      string
	Role               string
	CreatedAt          string
	UpdatedAt          string

	// Unique constraint names, used to classify duplicate-key violations.
	UniqueUsername string
	UniqueEmail    string
}

// UserAccount is the schema definition for users.account
var UserAccount = UserAccountTable{
	Table:              "users.account",
	ID:                 "id",
	Username:           "username",
	NormalizedUsername: "normalizedusername",
	Email:              "email",
	NormalizedEmail:    "normalizedemail",
	EmailConfirmed:     "emailconfirmed",
	PasswordHash:       "passwordhash",
	SecurityStamp:      "securitystamp",
	LockoutEnabled:     "lockoutenabled",
	AccessFailedCount:  "accessfailedcount",
	LockoutEnd:         "lockoutend",
	TwoFactorEnabled:   "twofactorenabled",
	AuthenticatorKey:   "authenticatorkey",
	RecoveryCodes:      "recoverycodes",
	Role:               "role",
	CreatedAt:          "createdat",
	UpdatedAt:          "updatedat",

	UniqueUsername: "uq_account_normalizedusername",
	UniqueEmail:    "uq_account_normalizedemail",
}

// Columns returns all column names in declaration order.
func (t UserAccountTable) Columns() []string {
	return []string{
		t.ID, t.Username, t.NormalizedUsername, t.Email, t.NormalizedEmail,
		t.EmailConfirmed, t.PasswordHash, t.SecurityStamp, t.LockoutEnabled,
		t.AccessFailedCount, t.LockoutEnd, t.TwoFactorEnabled, t.AuthenticatorKey,
		t.RecoveryCodes, t.Role, t.CreatedAt, t.UpdatedAt,
	}
}

// ColumnList returns the columns joined for a SELECT or INSERT clause.
func (t UserAccountTable) ColumnList() string {
	return strings.Join(t.Columns(), ", ")
}
