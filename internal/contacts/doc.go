// Package contacts parses uploaded contact spreadsheets into the contact
// records used by the bulk mailer. It accepts xlsx and csv uploads and maps
// column headers through alias tables, so files exported from different
// systems (including Hungarian-language exports) resolve to the same
// company/person/email triple.
package contacts
